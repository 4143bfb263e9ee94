// Package playback keeps the single shared transcription engine in step with
// the current video.
package playback

import (
	"context"
	"time"

	"livesync/pkg/async"
	"livesync/pkg/logger"
)

// Engine control surface of the transcription engine
type Engine interface {
	Start(ctx context.Context, videoURL string, offset float64) error
	Stop(ctx context.Context, videoURL string) error
	Seek(ctx context.Context, videoURL string, offset float64) error
	Pause(ctx context.Context, videoURL string) error
	Resume(ctx context.Context, videoURL string, offset float64) error
}

// Scheduler runs fn after d on the owner's serialized event loop
type Scheduler func(d time.Duration, fn func())

// State orchestrator's view of the transcription engine.
// An empty VideoURL means no transcription is running.
type State struct {
	VideoURL       string    `json:"videoUrl,omitempty"`
	Offset         float64   `json:"offset"`
	SeekInProgress bool      `json:"seekInProgress"`
	LastSeekTime   time.Time `json:"lastSeekTime,omitempty"`
}

// Coordinator serializes start/stop/seek/pause/resume calls. State is updated
// before the call is issued; call outcomes are logged and never change it.
// Not safe for concurrent use.
type Coordinator struct {
	engine   Engine
	run      async.Runner
	schedule Scheduler
	cooldown time.Duration
	now      func() time.Time
	state    State
}

// NewCoordinator creates a coordinator. A nil schedule falls back to
// time.AfterFunc, which is only safe when nothing else touches the coordinator.
func NewCoordinator(engine Engine, run async.Runner, schedule Scheduler, cooldown time.Duration, now func() time.Time) *Coordinator {
	if schedule == nil {
		schedule = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		engine:   engine,
		run:      run,
		schedule: schedule,
		cooldown: cooldown,
		now:      now,
	}
}

// State returns a copy of the current state
func (c *Coordinator) State() State {
	return c.state
}

// Current video being transcribed, empty when idle
func (c *Coordinator) Current() string {
	return c.state.VideoURL
}

// Start switches transcription to videoURL. A different active video is
// stopped first within the same task so the two calls never overlap.
// Returns false when videoURL is already current.
func (c *Coordinator) Start(ctx context.Context, videoURL string, offset float64) bool {
	if videoURL == "" {
		return false
	}
	prev := c.state.VideoURL
	if prev == videoURL {
		logger.DebugCtx(ctx, "transcription already running for %s", videoURL)
		return false
	}

	c.state = State{VideoURL: videoURL, Offset: offset}
	logger.InfoCtx(ctx, "transcription -> %s @%.1fs", videoURL, offset)

	c.run(ctx, "transcription start", func(ctx context.Context) error {
		if prev != "" {
			if err := c.engine.Stop(ctx, prev); err != nil {
				logger.WarnCtx(ctx, "transcription stop for %s failed: %v", prev, err)
			}
		}
		return c.engine.Start(ctx, videoURL, offset)
	})
	return true
}

// Stop clears the state and stops the active video, if any
func (c *Coordinator) Stop(ctx context.Context) bool {
	prev := c.state.VideoURL
	c.state = State{}
	if prev == "" {
		return false
	}

	logger.InfoCtx(ctx, "transcription stop for %s", prev)
	c.run(ctx, "transcription stop", func(ctx context.Context) error {
		return c.engine.Stop(ctx, prev)
	})
	return true
}

// Pause forwards a player pause
func (c *Coordinator) Pause(ctx context.Context) bool {
	video := c.state.VideoURL
	if video == "" {
		return false
	}
	c.run(ctx, "transcription pause", func(ctx context.Context) error {
		return c.engine.Pause(ctx, video)
	})
	return true
}

// Resume forwards a player resume unless a seek is in progress or happened
// within the cooldown: the seek already repositioned and resumed the engine.
func (c *Coordinator) Resume(ctx context.Context, offset float64) bool {
	video := c.state.VideoURL
	if video == "" {
		return false
	}
	if c.state.SeekInProgress || (!c.state.LastSeekTime.IsZero() && c.now().Sub(c.state.LastSeekTime) < c.cooldown) {
		logger.DebugCtx(ctx, "resume @%.1fs suppressed, seek in progress", offset)
		return false
	}

	c.state.Offset = offset
	c.run(ctx, "transcription resume", func(ctx context.Context) error {
		return c.engine.Resume(ctx, video, offset)
	})
	return true
}

// Seek repositions the engine and opens the resume cooldown
func (c *Coordinator) Seek(ctx context.Context, offset float64) bool {
	video := c.state.VideoURL
	if video == "" {
		return false
	}

	seekTime := c.now()
	c.state.Offset = offset
	c.state.SeekInProgress = true
	c.state.LastSeekTime = seekTime

	c.run(ctx, "transcription seek", func(ctx context.Context) error {
		return c.engine.Seek(ctx, video, offset)
	})

	c.schedule(c.cooldown, func() {
		// A later seek owns the flag.
		if c.state.LastSeekTime.Equal(seekTime) {
			c.state.SeekInProgress = false
		}
	})
	return true
}
