// Package session tracks viewer sessions, their worker slots and the
// reconnect holds kept for clients that dropped their connection.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"livesync/internal/model"
	"livesync/pkg/constants"
	"livesync/pkg/logger"

	"github.com/google/uuid"
)

// Slots is the part of the worker pool the registry drives
type Slots interface {
	Acquire(sessionID string, now time.Time) (string, bool)
	Bind(slotID, sessionID string, now time.Time) bool
	Release(slotID string) bool
	Slot(slotID string) (model.WorkerSlot, bool)
	IsOffline(slotID string) bool
	Status() model.PoolStatus
}

// Registry maps session ids to worker slots and client connections.
// Every session id lives in exactly one of sessions or pending.
// Not safe for concurrent use.
type Registry struct {
	slots    Slots
	window   time.Duration
	now      func() time.Time
	newID    func(time.Time) string
	sessions map[string]*model.Session
	pending  map[string]*model.PendingReconnect
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides session id generation
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(r *Registry) { r.newID = gen }
}

// NewRegistry creates a registry over slots with the given reconnect window
func NewRegistry(slots Slots, window time.Duration, opts ...Option) *Registry {
	r := &Registry{
		slots:    slots,
		window:   window,
		now:      time.Now,
		newID:    NewSessionID,
		sessions: make(map[string]*model.Session),
		pending:  make(map[string]*model.PendingReconnect),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSessionID returns sess_<unix-ms>_<6 random chars>
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("sess_%d_%s", now.UnixMilli(), suffix)
}

// RequestSession allocates a worker for clientConnID, or restores the
// session named by existingSessionID if it is still held for reconnect.
func (r *Registry) RequestSession(ctx context.Context, clientConnID, videoURL, existingSessionID string) model.SessionResult {
	if strings.TrimSpace(videoURL) == "" {
		return model.SessionResult{
			Reason:  constants.FailureInvalidRequest,
			Message: "videoUrl is required",
		}
	}

	now := r.now()

	if existingSessionID != "" {
		if res, ok := r.tryReconnect(ctx, clientConnID, existingSessionID, now); ok {
			return res
		}
	}

	for _, s := range r.sessions {
		if s.ClientConnID == clientConnID {
			logger.WarnCtx(logger.WithTrace(ctx, s.ID), "connection %s already owns session on %s", clientConnID, s.WorkerID)
			return model.SessionResult{
				Success:   true,
				Existing:  true,
				SessionID: s.ID,
				WorkerID:  s.WorkerID,
				VideoURL:  s.VideoURL,
				Message:   "Using existing session",
			}
		}
	}

	sessionID := r.newID(now)
	workerID, ok := r.slots.Acquire(sessionID, now)
	if !ok {
		status := r.Status()
		logger.WarnCtx(ctx, "all workers busy (%d/%d), rejecting connection %s", status.Busy, status.Total, clientConnID)
		return model.SessionResult{
			Reason:  constants.FailureServerFull,
			Message: fmt.Sprintf("Server full (%d/%d slots in use). Please try again later.", status.Total-status.Available, status.Total),
			Status:  &status,
		}
	}

	r.sessions[sessionID] = &model.Session{
		ID:           sessionID,
		WorkerID:     workerID,
		ClientConnID: clientConnID,
		VideoURL:     videoURL,
		CreatedAt:    now,
		LastActivity: now,
	}

	logger.InfoCtx(logger.WithTrace(ctx, sessionID), "created session on %s for %s", workerID, videoURL)
	return model.SessionResult{
		Success:   true,
		SessionID: sessionID,
		WorkerID:  workerID,
		VideoURL:  videoURL,
		Message:   "Session created",
	}
}

// tryReconnect promotes a pending hold back to an active session. A hold that
// has expired or whose slot went offline is dropped and its slot released so
// the caller falls through to a fresh allocation.
func (r *Registry) tryReconnect(ctx context.Context, clientConnID, sessionID string, now time.Time) (model.SessionResult, bool) {
	hold, ok := r.pending[sessionID]
	if !ok {
		return model.SessionResult{}, false
	}
	ctx = logger.WithTrace(ctx, sessionID)

	if now.Sub(hold.DisconnectedAt) >= r.window || r.slots.IsOffline(hold.WorkerID) {
		logger.InfoCtx(ctx, "reconnect hold on %s is stale, allocating fresh", hold.WorkerID)
		delete(r.pending, sessionID)
		r.releaseIfBound(hold.WorkerID, sessionID)
		return model.SessionResult{}, false
	}

	// A connection owns at most one active session: reclaiming the hold
	// ends whatever the connection was running before.
	var superseded []model.Session
	for id, s := range r.sessions {
		if s.ClientConnID != clientConnID {
			continue
		}
		if ended, ok := r.EndSession(ctx, id, constants.EndReasonUserAction); ok {
			superseded = append(superseded, ended)
		}
	}

	r.sessions[sessionID] = &model.Session{
		ID:           sessionID,
		WorkerID:     hold.WorkerID,
		ClientConnID: clientConnID,
		VideoURL:     hold.VideoURL,
		CreatedAt:    hold.CreatedAt,
		LastActivity: now,
	}
	r.slots.Bind(hold.WorkerID, sessionID, now)
	delete(r.pending, sessionID)

	logger.InfoCtx(ctx, "reconnected session to %s", hold.WorkerID)
	return model.SessionResult{
		Success:     true,
		SessionID:   sessionID,
		WorkerID:    hold.WorkerID,
		VideoURL:    hold.VideoURL,
		Reconnected: true,
		Message:     "Reconnected to existing session",
		Superseded:  superseded,
	}, true
}

// EndSession removes an active session or reconnect hold and releases its
// worker. Returns false when the id is unknown.
func (r *Registry) EndSession(ctx context.Context, sessionID string, reason constants.EndReason) (model.Session, bool) {
	ctx = logger.WithTrace(ctx, sessionID)

	if s, ok := r.sessions[sessionID]; ok {
		delete(r.sessions, sessionID)
		delete(r.pending, sessionID)
		r.releaseIfBound(s.WorkerID, sessionID)
		logger.InfoCtx(ctx, "ended session (%s), released %s", reason, s.WorkerID)
		return *s, true
	}

	if hold, ok := r.pending[sessionID]; ok {
		delete(r.pending, sessionID)
		r.releaseIfBound(hold.WorkerID, sessionID)
		logger.InfoCtx(ctx, "ended held session (%s), released %s", reason, hold.WorkerID)
		return model.Session{
			ID:        sessionID,
			WorkerID:  hold.WorkerID,
			VideoURL:  hold.VideoURL,
			CreatedAt: hold.CreatedAt,
		}, true
	}

	logger.DebugCtx(ctx, "end requested for unknown session (%s)", reason)
	return model.Session{}, false
}

// HandleDisconnect moves the session owned by clientConnID into the
// reconnect hold. The worker slot stays busy.
func (r *Registry) HandleDisconnect(ctx context.Context, clientConnID string) (string, bool) {
	s, ok := r.sessionByConn(clientConnID)
	if !ok {
		return "", false
	}
	now := r.now()
	r.pending[s.ID] = &model.PendingReconnect{
		SessionID:      s.ID,
		WorkerID:       s.WorkerID,
		VideoURL:       s.VideoURL,
		CreatedAt:      s.CreatedAt,
		DisconnectedAt: now,
	}
	delete(r.sessions, s.ID)

	logger.InfoCtx(logger.WithTrace(ctx, s.ID), "client disconnected, holding %s for %v", s.WorkerID, r.window)
	return s.ID, true
}

// SweepExpired drops reconnect holds older than the window and frees their
// slots. Returns the expired holds.
func (r *Registry) SweepExpired(ctx context.Context) []model.PendingReconnect {
	now := r.now()
	var expired []model.PendingReconnect
	for id, hold := range r.pending {
		if now.Sub(hold.DisconnectedAt) < r.window {
			continue
		}
		delete(r.pending, id)
		r.releaseIfBound(hold.WorkerID, id)
		expired = append(expired, *hold)
		logger.InfoCtx(logger.WithTrace(ctx, id), "reconnect window expired, released %s", hold.WorkerID)
	}
	return expired
}

// ForceEndSlot ends every session and hold bound to slotID, used when the
// slot's worker goes offline. Returns the ended sessions.
func (r *Registry) ForceEndSlot(ctx context.Context, slotID string, reason constants.EndReason) []model.Session {
	var ended []model.Session
	for id, s := range r.sessions {
		if s.WorkerID != slotID {
			continue
		}
		if es, ok := r.EndSession(ctx, id, reason); ok {
			ended = append(ended, es)
		}
	}
	for id, hold := range r.pending {
		if hold.WorkerID != slotID {
			continue
		}
		if es, ok := r.EndSession(ctx, id, reason); ok {
			ended = append(ended, es)
		}
	}
	return ended
}

// UpdateActivity refreshes the session's last-activity time
func (r *Registry) UpdateActivity(sessionID string) bool {
	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	s.LastActivity = r.now()
	return true
}

// Session returns a copy of an active session
func (r *Registry) Session(sessionID string) (model.Session, bool) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return model.Session{}, false
	}
	return *s, true
}

// SessionByConn returns the active session owned by a client connection
func (r *Registry) SessionByConn(clientConnID string) (model.Session, bool) {
	s, ok := r.sessionByConn(clientConnID)
	if !ok {
		return model.Session{}, false
	}
	return *s, true
}

// Pending returns a copy of a reconnect hold
func (r *Registry) Pending(sessionID string) (model.PendingReconnect, bool) {
	hold, ok := r.pending[sessionID]
	if !ok {
		return model.PendingReconnect{}, false
	}
	return *hold, true
}

// Watching reports whether any active session or reconnect hold still
// references videoURL
func (r *Registry) Watching(videoURL string) bool {
	for _, s := range r.sessions {
		if s.VideoURL == videoURL {
			return true
		}
	}
	for _, hold := range r.pending {
		if hold.VideoURL == videoURL {
			return true
		}
	}
	return false
}

// Status pool occupancy plus session counters
func (r *Registry) Status() model.PoolStatus {
	status := r.slots.Status()
	status.ActiveSessions = len(r.sessions)
	status.PendingReconnect = len(r.pending)
	return status
}

// sessionByConn linear scan; the session count is bounded by the pool size
func (r *Registry) sessionByConn(clientConnID string) (*model.Session, bool) {
	if clientConnID == "" {
		return nil, false
	}
	for _, s := range r.sessions {
		if s.ClientConnID == clientConnID {
			return s, true
		}
	}
	return nil, false
}

func (r *Registry) releaseIfBound(slotID, sessionID string) {
	slot, ok := r.slots.Slot(slotID)
	if !ok || slot.SessionID != sessionID {
		return
	}
	r.slots.Release(slotID)
}
