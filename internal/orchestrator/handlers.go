package orchestrator

import (
	"context"
	"encoding/json"

	"livesync/internal/model"
	"livesync/pkg/constants"
	"livesync/pkg/logger"
	"livesync/pkg/notification"
)

// Everything in this file runs on the event loop.

func (o *Orchestrator) dispatch(ctx context.Context, connID string, msg model.Message) {
	if scoped, ok := msg.(model.SessionScoped); ok && scoped.Session() != "" {
		ctx = logger.WithTrace(ctx, connID+"/"+scoped.Session())
	}
	switch m := msg.(type) {
	case model.ClientMessage:
		o.handleClient(ctx, connID, m)
	case model.WorkerMessage:
		o.handleWorker(ctx, connID, m)
	default:
		logger.WarnCtx(ctx, "unhandled message %s", msg.EventName())
	}
}

func (o *Orchestrator) handleClient(ctx context.Context, connID string, msg model.ClientMessage) {
	switch m := msg.(type) {
	case *model.StartLiveStream:
		o.startLiveStream(ctx, connID, m)
	case *model.EndSession:
		o.endSession(ctx, connID, m)
	case *model.PlayerTime:
		o.router.RouteToWorker(ctx, connID, m.SessionID, m.EventName(), m.Raw())
	case *model.PlayerSeek:
		o.router.RouteToWorker(ctx, connID, m.SessionID, m.EventName(), m.Raw())
		if o.drivesPlayback(m.SessionID) {
			o.playback.Seek(ctx, m.Time)
		}
	case *model.PlayerState:
		o.playerState(ctx, connID, m)
	default:
		logger.WarnCtx(ctx, "unhandled client message %s", msg.EventName())
	}
}

func (o *Orchestrator) handleWorker(ctx context.Context, connID string, msg model.WorkerMessage) {
	if scoped, ok := msg.(model.SessionScoped); ok && !o.servesSession(connID, scoped.Session()) {
		logger.WarnCtx(ctx, "dropping %s: sender is not the worker bound to session %s", msg.EventName(), scoped.Session())
		return
	}
	switch m := msg.(type) {
	case *model.RegisterWorker:
		o.registerWorker(ctx, connID, m)
	case *model.AIBoxes:
		o.router.RouteAnnotation(ctx, connID, m.SessionID, m.EventName(), m.Raw())
	case *model.StreamStarted:
		o.router.RouteToClient(ctx, connID, m.SessionID, m.EventName(), m.Raw())
	case *model.StreamError:
		o.router.RouteToClient(ctx, connID, m.SessionID, m.EventName(), o.viewerStreamError(m))
		if m.SessionID == "" {
			return
		}
		logger.WarnCtx(logger.WithTrace(ctx, m.SessionID), "worker reported stream error: %s", m.Message)
		if s, ok := o.registry.EndSession(ctx, m.SessionID, constants.EndReasonStreamError); ok {
			o.sessionFinished(ctx, s, constants.EndReasonStreamError, false)
			o.publishStatus(ctx)
		}
	default:
		logger.WarnCtx(ctx, "unhandled worker message %s", msg.EventName())
	}
}

func (o *Orchestrator) startLiveStream(ctx context.Context, connID string, m *model.StartLiveStream) {
	res := o.registry.RequestSession(ctx, connID, m.VideoURL, m.ExistingSessionID)
	if !res.Success {
		o.hub.Send(connID, constants.EventSessionError, res)
		return
	}
	for _, s := range res.Superseded {
		o.sessionFinished(ctx, s, constants.EndReasonUserAction, true)
	}
	o.hub.Send(connID, constants.EventSessionCreated, res)
	if res.Existing {
		return
	}

	ctx = logger.WithTrace(ctx, res.SessionID)
	if !res.Reconnected {
		o.router.ToWorker(ctx, res.SessionID, constants.EventStartProcessing, model.StartProcessing{
			SessionID: res.SessionID,
			WorkerID:  res.WorkerID,
			VideoURL:  res.VideoURL,
		})
	}
	o.playback.Start(ctx, res.VideoURL, 0)
	o.publishStatus(ctx)
}

func (o *Orchestrator) endSession(ctx context.Context, connID string, m *model.EndSession) {
	sessionID := m.SessionID
	if sessionID == "" {
		if s, ok := o.registry.SessionByConn(connID); ok {
			sessionID = s.ID
		}
	}
	reason := constants.EndReason(m.Reason)
	if reason == "" {
		reason = constants.EndReasonUserAction
	}

	s, ok := o.registry.EndSession(ctx, sessionID, reason)
	if !ok {
		o.hub.Send(connID, constants.EventSessionEnded, model.SessionEnded{SessionID: sessionID, Reason: reason})
		return
	}
	o.sessionFinished(ctx, s, reason, true)
	if s.ClientConnID != connID {
		o.hub.Send(connID, constants.EventSessionEnded, model.SessionEnded{SessionID: s.ID, WorkerID: s.WorkerID, Reason: reason})
	}
	o.publishStatus(ctx)
}

func (o *Orchestrator) playerState(ctx context.Context, connID string, m *model.PlayerState) {
	o.router.RouteToWorker(ctx, connID, m.SessionID, m.EventName(), m.Raw())
	owns := o.drivesPlayback(m.SessionID)

	switch m.State {
	case constants.PlayerStatePaused:
		if owns {
			o.playback.Pause(ctx)
		}
	case constants.PlayerStatePlaying:
		if owns {
			o.playback.Resume(ctx, m.Time)
		}
	case constants.PlayerStateEnded:
		if m.SessionID == "" {
			if owns {
				o.playback.Stop(ctx)
			}
			return
		}
		if s, ok := o.registry.EndSession(ctx, m.SessionID, constants.EndReasonVideoEnded); ok {
			o.sessionFinished(ctx, s, constants.EndReasonVideoEnded, true)
			o.publishStatus(ctx)
		}
	default:
		logger.DebugCtx(ctx, "ignoring player state %q", m.State)
	}
}

func (o *Orchestrator) registerWorker(ctx context.Context, connID string, m *model.RegisterWorker) {
	if !o.pool.MarkOnline(m.WorkerID, connID) {
		logger.WarnCtx(ctx, "unknown worker id %q", m.WorkerID)
		o.hub.Send(connID, constants.EventWorkerRegistered, model.WorkerRegistered{Error: "unknown worker id: " + m.WorkerID})
		return
	}
	logger.InfoCtx(ctx, "worker %s registered", m.WorkerID)
	o.hub.Send(connID, constants.EventWorkerRegistered, model.WorkerRegistered{Success: true, WorkerID: m.WorkerID})

	// A session may have been allocated before its worker connected.
	if slot, ok := o.pool.Slot(m.WorkerID); ok && slot.SessionID != "" {
		if s, ok := o.registry.Session(slot.SessionID); ok {
			o.router.ToSlot(ctx, m.WorkerID, constants.EventStartProcessing, model.StartProcessing{
				SessionID: s.ID,
				WorkerID:  s.WorkerID,
				VideoURL:  s.VideoURL,
			})
		}
	}
	o.publishStatus(ctx)
}

func (o *Orchestrator) handleDisconnect(ctx context.Context, connID string) {
	o.hub.Remove(connID)

	if slotID, ok := o.pool.SlotByConn(connID); ok {
		o.pool.MarkOffline(slotID)
		logger.WarnCtx(ctx, "worker %s went offline", slotID)
		ended := o.registry.ForceEndSlot(ctx, slotID, constants.EndReasonWorkerOffline)
		ids := make([]string, 0, len(ended))
		for _, s := range ended {
			ids = append(ids, s.ID)
			o.sessionFinished(ctx, s, constants.EndReasonWorkerOffline, true)
		}
		o.publishStatus(ctx)
		o.alertWorkerOffline(ctx, slotID, ids)
		return
	}

	if _, ok := o.registry.HandleDisconnect(ctx, connID); ok {
		o.publishStatus(ctx)
	}
}

func (o *Orchestrator) sweep(ctx context.Context) []string {
	expired := o.registry.SweepExpired(ctx)
	if len(expired) == 0 {
		return nil
	}
	ids := make([]string, 0, len(expired))
	for _, hold := range expired {
		ids = append(ids, hold.SessionID)
		o.router.ToSlot(logger.WithTrace(ctx, hold.SessionID), hold.WorkerID, constants.EventStopProcessing, model.StopProcessing{
			SessionID: hold.SessionID,
			Reason:    constants.EndReasonExpired,
		})
		o.stopPlaybackIfUnwatched(ctx, hold.VideoURL)
	}
	logger.InfoCtx(ctx, "expired %d reconnect holds", len(expired))
	o.publishStatus(ctx)
	return ids
}

// sessionFinished tells the worker and, if asked, the client that s is gone,
// and stops transcription once nobody references its video
func (o *Orchestrator) sessionFinished(ctx context.Context, s model.Session, reason constants.EndReason, notifyClient bool) {
	ctx = logger.WithTrace(ctx, s.ID)
	if reason != constants.EndReasonWorkerOffline {
		o.router.ToSlot(ctx, s.WorkerID, constants.EventStopProcessing, model.StopProcessing{SessionID: s.ID, Reason: reason})
	}
	if notifyClient && s.ClientConnID != "" {
		o.hub.Send(s.ClientConnID, constants.EventSessionEnded, model.SessionEnded{SessionID: s.ID, WorkerID: s.WorkerID, Reason: reason})
	}
	o.stopPlaybackIfUnwatched(ctx, s.VideoURL)
}

func (o *Orchestrator) stopPlaybackIfUnwatched(ctx context.Context, videoURL string) {
	if videoURL == "" || videoURL != o.playback.Current() || o.registry.Watching(videoURL) {
		return
	}
	o.playback.Stop(ctx)
}

// drivesPlayback reports whether player events of sessionID control the
// shared transcription engine. Session-less events are assumed to come from
// a single-session deployment.
func (o *Orchestrator) drivesPlayback(sessionID string) bool {
	current := o.playback.Current()
	if current == "" {
		return false
	}
	if sessionID == "" {
		return true
	}
	s, ok := o.registry.Session(sessionID)
	return ok && s.VideoURL == current
}

func (o *Orchestrator) publishStatus(ctx context.Context) {
	status := o.registry.Status()
	o.router.BroadcastAll(constants.EventWorkerStatusUpdate, status)
	if o.publisher == nil {
		return
	}
	o.run(ctx, "pool status publish", func(ctx context.Context) error {
		return o.publisher.Save(ctx, status)
	})
}

func (o *Orchestrator) alertWorkerOffline(ctx context.Context, slotID string, sessionIDs []string) {
	if o.alerter == nil {
		return
	}
	status := o.registry.Status()
	n := notification.WorkerOfflineNotification{
		WorkerID:      slotID,
		EndedSessions: sessionIDs,
		Available:     status.Available,
		Total:         status.Total,
		DetectedAt:    o.now(),
	}
	o.notify(ctx, "worker offline alert", func(ctx context.Context) error {
		return o.alerter.SendWorkerOffline(ctx, n)
	})
}

// viewerStreamError keeps the worker's payload but replaces its message with
// a redacted one and adds a classification
func (o *Orchestrator) viewerStreamError(m *model.StreamError) map[string]interface{} {
	payload := map[string]interface{}{}
	if raw := m.Raw(); len(raw) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil {
			for k, v := range fields {
				payload[k] = v
			}
		}
	}
	classified := o.sanitizer.Classify(m.Message)
	payload["message"] = o.sanitizer.SanitizeSensitiveInfo(m.Message)
	payload["errorCode"] = classified.ErrorCode
	payload["userMessage"] = classified.UserMessage
	payload["suggestion"] = classified.Suggestion
	return payload
}

// servesSession reports whether connID is the worker connection of the slot
// bound to sessionID. Session-less messages and sessions that no longer
// exist are let through; the router drops the latter.
func (o *Orchestrator) servesSession(connID, sessionID string) bool {
	if sessionID == "" {
		return true
	}
	workerID := ""
	if s, ok := o.registry.Session(sessionID); ok {
		workerID = s.WorkerID
	} else if hold, ok := o.registry.Pending(sessionID); ok {
		workerID = hold.WorkerID
	} else {
		return true
	}
	slotID, ok := o.pool.SlotByConn(connID)
	return ok && slotID == workerID
}
