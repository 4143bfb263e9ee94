// Package hub tracks live real-time connections and fans frames out to them.
package hub

import (
	"context"
	"encoding/json"

	"livesync/internal/model"
	"livesync/pkg/logger"
)

// Conn a live connection. Send must never block; a frame that cannot be
// queued is dropped.
type Conn interface {
	ID() string
	Send(frame []byte) bool
	Close() error
}

// Hub registry of live connections. Owned by the orchestrator's event loop,
// so it carries no lock.
type Hub struct {
	conns map[string]Conn
}

// New creates an empty hub
func New() *Hub {
	return &Hub{conns: make(map[string]Conn)}
}

// Add registers conn
func (h *Hub) Add(conn Conn) {
	h.conns[conn.ID()] = conn
}

// Remove forgets a connection. Returns false if it was unknown.
func (h *Hub) Remove(id string) bool {
	if _, ok := h.conns[id]; !ok {
		return false
	}
	delete(h.conns, id)
	return true
}

// Has reports whether id is connected
func (h *Hub) Has(id string) bool {
	_, ok := h.conns[id]
	return ok
}

// Count number of live connections
func (h *Hub) Count() int {
	return len(h.conns)
}

// Send delivers one event to one connection
func (h *Hub) Send(id, event string, data interface{}) bool {
	conn, ok := h.conns[id]
	if !ok {
		return false
	}
	frame, err := encode(event, data)
	if err != nil {
		logger.ErrorCtx(context.Background(), "failed to encode %s: %v", event, err)
		return false
	}
	return conn.Send(frame)
}

// Broadcast delivers an event to every connection except exceptID. Returns
// the number of connections that accepted it.
func (h *Hub) Broadcast(exceptID, event string, data interface{}) int {
	frame, err := encode(event, data)
	if err != nil {
		logger.ErrorCtx(context.Background(), "failed to encode %s: %v", event, err)
		return 0
	}
	delivered := 0
	for id, conn := range h.conns {
		if id == exceptID {
			continue
		}
		if conn.Send(frame) {
			delivered++
		}
	}
	return delivered
}

// CloseAll closes every connection
func (h *Hub) CloseAll() {
	for id, conn := range h.conns {
		_ = conn.Close()
		delete(h.conns, id)
	}
}

func encode(event string, data interface{}) ([]byte, error) {
	if raw, ok := data.(json.RawMessage); ok && len(raw) == 0 {
		data = nil
	}
	return json.Marshal(model.Frame{Event: event, Data: data})
}
