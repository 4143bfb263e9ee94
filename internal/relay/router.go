// Package relay routes session-scoped real-time messages between the client
// connection and the worker connection bound to the same session.
package relay

import (
	"context"

	"livesync/internal/model"
	"livesync/pkg/logger"
)

// Sessions session lookup used for routing
type Sessions interface {
	Session(sessionID string) (model.Session, bool)
	UpdateActivity(sessionID string) bool
}

// Slots worker slot lookup used for routing
type Slots interface {
	Slot(slotID string) (model.WorkerSlot, bool)
}

// Sender delivers frames to live connections
type Sender interface {
	Send(connID, event string, data interface{}) bool
	Broadcast(exceptConnID, event string, data interface{}) int
}

// Router reads only the session id of a message. The only state it touches
// is the session's last-activity time on routed annotations.
type Router struct {
	sessions Sessions
	slots    Slots
	sender   Sender
}

// NewRouter creates a router
func NewRouter(sessions Sessions, slots Slots, sender Sender) *Router {
	return &Router{sessions: sessions, slots: slots, sender: sender}
}

// ToClient delivers to the client connection of sessionID. Undeliverable
// frames are dropped.
func (r *Router) ToClient(ctx context.Context, sessionID, event string, payload interface{}) bool {
	s, ok := r.sessions.Session(sessionID)
	if !ok {
		logger.DebugCtx(logger.WithTrace(ctx, sessionID), "drop %s: no active session", event)
		return false
	}
	if !r.sender.Send(s.ClientConnID, event, payload) {
		logger.DebugCtx(logger.WithTrace(ctx, sessionID), "drop %s: client %s unreachable", event, s.ClientConnID)
		return false
	}
	return true
}

// ToWorker delivers to the worker connection serving sessionID's slot
func (r *Router) ToWorker(ctx context.Context, sessionID, event string, payload interface{}) bool {
	s, ok := r.sessions.Session(sessionID)
	if !ok {
		logger.DebugCtx(logger.WithTrace(ctx, sessionID), "drop %s: no active session", event)
		return false
	}
	return r.ToSlot(logger.WithTrace(ctx, sessionID), s.WorkerID, event, payload)
}

// ToSlot delivers to the worker connection serving slotID, whatever session
// the slot is bound to
func (r *Router) ToSlot(ctx context.Context, slotID, event string, payload interface{}) bool {
	slot, ok := r.slots.Slot(slotID)
	if !ok || slot.WorkerConnID == "" {
		logger.DebugCtx(ctx, "drop %s: %s has no worker connected", event, slotID)
		return false
	}
	return r.sender.Send(slot.WorkerConnID, event, payload)
}

// Broadcast delivers to every connection except exceptConnID
func (r *Router) Broadcast(exceptConnID, event string, payload interface{}) int {
	return r.sender.Broadcast(exceptConnID, event, payload)
}

// BroadcastAll delivers to every connection
func (r *Router) BroadcastAll(event string, payload interface{}) int {
	return r.sender.Broadcast("", event, payload)
}

// RouteToClient forwards a worker event to the owning client. Messages
// without a session id go to everyone but the sender.
func (r *Router) RouteToClient(ctx context.Context, senderConnID, sessionID, event string, payload interface{}) bool {
	if sessionID == "" {
		return r.Broadcast(senderConnID, event, payload) > 0
	}
	return r.ToClient(ctx, sessionID, event, payload)
}

// RouteToWorker forwards a client event to the bound worker. Messages
// without a session id go to everyone but the sender.
func (r *Router) RouteToWorker(ctx context.Context, senderConnID, sessionID, event string, payload interface{}) bool {
	if sessionID == "" {
		return r.Broadcast(senderConnID, event, payload) > 0
	}
	return r.ToWorker(ctx, sessionID, event, payload)
}

// RouteAnnotation forwards an annotation frame to the owning client and
// refreshes the session's activity time
func (r *Router) RouteAnnotation(ctx context.Context, senderConnID, sessionID, event string, payload interface{}) bool {
	if sessionID != "" {
		r.sessions.UpdateActivity(sessionID)
	}
	return r.RouteToClient(ctx, senderConnID, sessionID, event, payload)
}
