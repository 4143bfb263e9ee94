package constants

// SlotStatus worker slot status
type SlotStatus string

const (
	SlotStatusIdle    SlotStatus = "idle"    // No session bound
	SlotStatusBusy    SlotStatus = "busy"    // Exactly one session bound (active or awaiting reconnect)
	SlotStatusOffline SlotStatus = "offline" // Worker connection dropped
)

func (s SlotStatus) String() string {
	return string(s)
}

// WorkerIDPrefix prefixes slot ids: worker-1 .. worker-N
const WorkerIDPrefix = "worker-"
