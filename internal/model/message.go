package model

import (
	"encoding/json"
	"fmt"

	"livesync/pkg/constants"
)

// Envelope wire frame: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Frame outbound wire frame
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Message is an inbound real-time message. The concrete set is closed:
// every variant is declared in this file and registered in decoders.
type Message interface {
	EventName() string
	Raw() json.RawMessage
}

// ClientMessage messages sent by viewer connections
type ClientMessage interface {
	Message
	clientMessage()
}

// WorkerMessage messages sent by AI worker connections
type WorkerMessage interface {
	Message
	workerMessage()
}

// SessionScoped messages that carry an optional session id
type SessionScoped interface {
	Session() string
}

type raw struct {
	data json.RawMessage
}

func (r raw) Raw() json.RawMessage { return r.data }

func (r *raw) setRaw(data json.RawMessage) { r.data = data }

// StartLiveStream client asks for a worker
type StartLiveStream struct {
	raw
	VideoURL          string `json:"videoUrl"`
	ExistingSessionID string `json:"existingSessionId,omitempty"`
}

// EndSession client ends its session
type EndSession struct {
	raw
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

// PlayerTime periodic player position
type PlayerTime struct {
	raw
	SessionID string  `json:"sessionId,omitempty"`
	Time      float64 `json:"time"`
}

// PlayerSeek user moved the playhead
type PlayerSeek struct {
	raw
	SessionID string  `json:"sessionId,omitempty"`
	Time      float64 `json:"time"`
}

// PlayerState playing / paused / ended transition
type PlayerState struct {
	raw
	SessionID string  `json:"sessionId,omitempty"`
	State     string  `json:"state"`
	Time      float64 `json:"time,omitempty"`
}

// RegisterWorker binds a worker connection to a pool slot
type RegisterWorker struct {
	raw
	WorkerID string `json:"workerId"`
}

// AIBoxes annotation frame produced by a worker
type AIBoxes struct {
	raw
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp float64         `json:"timestamp,omitempty"`
	Boxes     json.RawMessage `json:"boxes,omitempty"`
}

// StreamStarted worker opened the video
type StreamStarted struct {
	raw
	SessionID string  `json:"sessionId,omitempty"`
	VideoURL  string  `json:"videoUrl,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// StreamError worker failed while processing
type StreamError struct {
	raw
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (StartLiveStream) EventName() string { return constants.EventStartLiveStream }
func (EndSession) EventName() string      { return constants.EventEndSession }
func (PlayerTime) EventName() string      { return constants.EventPlayerTime }
func (PlayerSeek) EventName() string      { return constants.EventPlayerSeek }
func (PlayerState) EventName() string     { return constants.EventPlayerState }
func (RegisterWorker) EventName() string  { return constants.EventRegisterWorker }
func (AIBoxes) EventName() string         { return constants.EventAIBoxes }
func (StreamStarted) EventName() string   { return constants.EventStreamStarted }
func (StreamError) EventName() string     { return constants.EventStreamError }

func (StartLiveStream) clientMessage() {}
func (EndSession) clientMessage()      {}
func (PlayerTime) clientMessage()      {}
func (PlayerSeek) clientMessage()      {}
func (PlayerState) clientMessage()     {}

func (RegisterWorker) workerMessage() {}
func (AIBoxes) workerMessage()        {}
func (StreamStarted) workerMessage()  {}
func (StreamError) workerMessage()    {}

func (m EndSession) Session() string    { return m.SessionID }
func (m PlayerTime) Session() string    { return m.SessionID }
func (m PlayerSeek) Session() string    { return m.SessionID }
func (m PlayerState) Session() string   { return m.SessionID }
func (m AIBoxes) Session() string       { return m.SessionID }
func (m StreamStarted) Session() string { return m.SessionID }
func (m StreamError) Session() string   { return m.SessionID }

type rawSetter[T any] interface {
	*T
	Message
	setRaw(json.RawMessage)
}

func decodeAs[T any, P rawSetter[T]](data json.RawMessage) (Message, error) {
	var v T
	p := P(&v)
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", p.EventName(), err)
		}
	}
	p.setRaw(data)
	return p, nil
}

var decoders = map[string]func(json.RawMessage) (Message, error){
	constants.EventStartLiveStream: decodeAs[StartLiveStream],
	constants.EventEndSession:      decodeAs[EndSession],
	constants.EventPlayerTime:      decodeAs[PlayerTime],
	constants.EventPlayerSeek:      decodeAs[PlayerSeek],
	constants.EventPlayerState:     decodeAs[PlayerState],
	constants.EventRegisterWorker:  decodeAs[RegisterWorker],
	constants.EventAIBoxes:         decodeAs[AIBoxes],
	constants.EventStreamStarted:   decodeAs[StreamStarted],
	constants.EventStreamError:     decodeAs[StreamError],
}

// Decode parses a wire frame into its message variant
func Decode(frame []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	decode, ok := decoders[env.Event]
	if !ok {
		return nil, fmt.Errorf("unknown event: %q", env.Event)
	}
	return decode(env.Data)
}
