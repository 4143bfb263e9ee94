package model

import (
	"time"

	"livesync/pkg/constants"
)

// WorkerSlot one unit of the fixed-size AI worker pool
type WorkerSlot struct {
	ID           string               `json:"id"`
	Status       constants.SlotStatus `json:"status"`
	SessionID    string               `json:"session_id,omitempty"`     // Bound session (empty when idle)
	WorkerConnID string               `json:"worker_conn_id,omitempty"` // Set only while a worker process is connected
	AssignedAt   time.Time            `json:"assigned_at,omitempty"`
}

// SlotSummary per-slot entry of the pool status
type SlotSummary struct {
	ID         string               `json:"id"`
	Status     constants.SlotStatus `json:"status"`
	HasSession bool                 `json:"hasSession"`
	HasWorker  bool                 `json:"hasWorker"`
}

// PoolStatus occupancy snapshot returned by status queries and broadcast to clients
type PoolStatus struct {
	Total            int           `json:"total"`
	Available        int           `json:"available"`
	Busy             int           `json:"busy"`
	Offline          int           `json:"offline"`
	PendingReconnect int           `json:"pendingReconnect"`
	ActiveSessions   int           `json:"activeSessions"`
	Workers          []SlotSummary `json:"workers"`
}
