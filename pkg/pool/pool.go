// Package pool implements the fixed-size AI worker slot pool.
//
// The pool knows nothing about sessions beyond the id bound to a slot: ending
// a session when its worker goes offline is the caller's job. A Pool is not
// safe for concurrent use; it is owned by the orchestrator's event loop.
package pool

import (
	"fmt"
	"time"

	"livesync/internal/model"
	"livesync/pkg/constants"
)

// Pool fixed set of worker slots with round-robin selection
type Pool struct {
	slots  []*model.WorkerSlot
	index  map[string]int
	cursor int
}

// New creates n idle slots named worker-1..worker-n
func New(n int) *Pool {
	if n < 0 {
		n = 0
	}
	p := &Pool{
		slots: make([]*model.WorkerSlot, n),
		index: make(map[string]int, n),
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s%d", constants.WorkerIDPrefix, i+1)
		p.slots[i] = &model.WorkerSlot{ID: id, Status: constants.SlotStatusIdle}
		p.index[id] = i
	}
	return p
}

// Size number of slots
func (p *Pool) Size() int {
	return len(p.slots)
}

// Acquire scans from the round-robin cursor for an idle slot, binds it to
// sessionID and marks it busy. The cursor moves past the chosen slot so
// successive acquisitions spread across the pool. Returns false without side
// effects when no slot is idle.
func (p *Pool) Acquire(sessionID string, now time.Time) (string, bool) {
	n := len(p.slots)
	for i := 0; i < n; i++ {
		idx := (p.cursor + i) % n
		slot := p.slots[idx]
		if slot.Status != constants.SlotStatusIdle {
			continue
		}
		p.cursor = (idx + 1) % n
		slot.Status = constants.SlotStatusBusy
		slot.SessionID = sessionID
		slot.AssignedAt = now
		return slot.ID, true
	}
	return "", false
}

// Bind rebinds a busy slot to sessionID (reconnect promotion)
func (p *Pool) Bind(slotID, sessionID string, now time.Time) bool {
	slot := p.get(slotID)
	if slot == nil || slot.Status == constants.SlotStatusOffline {
		return false
	}
	slot.Status = constants.SlotStatusBusy
	slot.SessionID = sessionID
	if slot.AssignedAt.IsZero() {
		slot.AssignedAt = now
	}
	return true
}

// Release unbinds the slot. Idempotent; an offline slot stays offline.
// Returns true when a session was actually unbound.
func (p *Pool) Release(slotID string) bool {
	slot := p.get(slotID)
	if slot == nil {
		return false
	}
	released := slot.SessionID != ""
	slot.SessionID = ""
	slot.AssignedAt = time.Time{}
	if slot.Status == constants.SlotStatusBusy {
		slot.Status = constants.SlotStatusIdle
	}
	return released
}

// MarkOnline records the worker connection serving slotID. An offline slot
// comes back idle; a busy slot keeps its session.
func (p *Pool) MarkOnline(slotID, workerConnID string) bool {
	slot := p.get(slotID)
	if slot == nil {
		return false
	}
	slot.WorkerConnID = workerConnID
	if slot.Status == constants.SlotStatusOffline {
		slot.Status = constants.SlotStatusIdle
	}
	return true
}

// MarkOffline flags the slot offline and returns the session still bound to
// it, which the caller must force-end.
func (p *Pool) MarkOffline(slotID string) (string, bool) {
	slot := p.get(slotID)
	if slot == nil {
		return "", false
	}
	slot.Status = constants.SlotStatusOffline
	slot.WorkerConnID = ""
	return slot.SessionID, true
}

// SlotByConn finds the slot served by a worker connection
func (p *Pool) SlotByConn(workerConnID string) (string, bool) {
	if workerConnID == "" {
		return "", false
	}
	for _, slot := range p.slots {
		if slot.WorkerConnID == workerConnID {
			return slot.ID, true
		}
	}
	return "", false
}

// Slot returns a copy of the slot
func (p *Pool) Slot(slotID string) (model.WorkerSlot, bool) {
	slot := p.get(slotID)
	if slot == nil {
		return model.WorkerSlot{}, false
	}
	return *slot, true
}

// IsOffline reports whether slotID exists and is offline
func (p *Pool) IsOffline(slotID string) bool {
	slot := p.get(slotID)
	return slot != nil && slot.Status == constants.SlotStatusOffline
}

// Status counts slots by status. Session counters are filled in by the registry.
func (p *Pool) Status() model.PoolStatus {
	status := model.PoolStatus{
		Total:   len(p.slots),
		Workers: make([]model.SlotSummary, 0, len(p.slots)),
	}
	for _, slot := range p.slots {
		switch slot.Status {
		case constants.SlotStatusIdle:
			status.Available++
		case constants.SlotStatusBusy:
			status.Busy++
		default:
			status.Offline++
		}
		status.Workers = append(status.Workers, model.SlotSummary{
			ID:         slot.ID,
			Status:     slot.Status,
			HasSession: slot.SessionID != "",
			HasWorker:  slot.WorkerConnID != "",
		})
	}
	return status
}

func (p *Pool) get(slotID string) *model.WorkerSlot {
	idx, ok := p.index[slotID]
	if !ok {
		return nil
	}
	return p.slots[idx]
}
