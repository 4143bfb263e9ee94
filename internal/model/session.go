package model

import (
	"time"

	"livesync/pkg/constants"
)

// Session binding between a connected viewer, a worker slot and a video
type Session struct {
	ID           string    `json:"session_id"`
	WorkerID     string    `json:"worker_id"`
	ClientConnID string    `json:"client_conn_id"`
	VideoURL     string    `json:"video_url"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// PendingReconnect reconnect hold for a session whose client disconnected
type PendingReconnect struct {
	SessionID      string    `json:"session_id"`
	WorkerID       string    `json:"worker_id"`
	VideoURL       string    `json:"video_url"`
	CreatedAt      time.Time `json:"created_at"`
	DisconnectedAt time.Time `json:"disconnected_at"`
}

// SessionResult outcome of a session request
type SessionResult struct {
	Success     bool                    `json:"success"`
	SessionID   string                  `json:"sessionId,omitempty"`
	WorkerID    string                  `json:"workerId,omitempty"`
	VideoURL    string                  `json:"videoUrl,omitempty"`
	Reconnected bool                    `json:"reconnected"`
	Existing    bool                    `json:"-"` // Same connection re-requested its active session
	Superseded  []Session               `json:"-"` // Sessions the connection gave up by reconnecting
	Reason      constants.FailureReason `json:"error,omitempty"`
	Message     string                  `json:"message"`
	Status      *PoolStatus             `json:"status,omitempty"`
}
