package model

import (
	"encoding/json"
	"time"

	"livesync/pkg/constants"
)

// StartProcessing command telling a worker to open a video for a session
type StartProcessing struct {
	SessionID string `json:"sessionId"`
	WorkerID  string `json:"workerId"`
	VideoURL  string `json:"videoUrl"`
}

// StopProcessing command telling a worker to drop a session
type StopProcessing struct {
	SessionID string              `json:"sessionId"`
	Reason    constants.EndReason `json:"reason,omitempty"`
}

// SessionEnded notification sent to the client that owned a session
type SessionEnded struct {
	SessionID string              `json:"sessionId"`
	WorkerID  string              `json:"workerId,omitempty"`
	Reason    constants.EndReason `json:"reason"`
}

// WorkerRegistered acknowledgement of register-worker
type WorkerRegistered struct {
	Success  bool   `json:"success"`
	WorkerID string `json:"workerId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AIResult result pushed by the AI engine through the ingestion webhook
type AIResult struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
