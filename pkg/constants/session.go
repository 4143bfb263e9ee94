package constants

// EndReason explains why a session was destroyed
type EndReason string

const (
	EndReasonUserAction    EndReason = "user_action"
	EndReasonVideoEnded    EndReason = "video_ended"
	EndReasonWorkerOffline EndReason = "worker_offline"
	EndReasonStreamError   EndReason = "stream_error"
	EndReasonExpired       EndReason = "reconnect_expired"
)

// FailureReason classifies a rejected session request
type FailureReason string

const (
	FailureServerFull     FailureReason = "server_full"
	FailureInvalidRequest FailureReason = "invalid_request"
)

// Player states reported by the client
const (
	PlayerStatePlaying = "playing"
	PlayerStatePaused  = "paused"
	PlayerStateEnded   = "ended"
)
