package constants

// Inbound client events
const (
	EventStartLiveStream = "start-live-stream"
	EventEndSession      = "end-session"
	EventPlayerTime      = "player-time"
	EventPlayerSeek      = "player-seek"
	EventPlayerState     = "player-state"
)

// Inbound worker events
const (
	EventRegisterWorker = "register-worker"
	EventAIBoxes        = "ai-boxes"
	EventStreamStarted  = "stream-started"
	EventStreamError    = "stream-error"
)

// Outbound events
const (
	EventSessionCreated     = "session-created"
	EventSessionError       = "session-error"
	EventSessionEnded       = "session-ended"
	EventWorkerRegistered   = "worker-registered"
	EventStartProcessing    = "start-processing"
	EventStopProcessing     = "stop-processing"
	EventWorkerStatusUpdate = "worker-status-update"
	EventAIResult           = "ai-result"
)
