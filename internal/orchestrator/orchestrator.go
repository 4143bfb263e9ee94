// Package orchestrator owns the worker pool, session registry, router and
// playback coordinator, and runs every mutation of them on one event loop.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"livesync/internal/hub"
	"livesync/internal/model"
	"livesync/internal/playback"
	"livesync/internal/relay"
	"livesync/internal/session"
	"livesync/pkg/async"
	"livesync/pkg/constants"
	"livesync/pkg/logger"
	"livesync/pkg/notification"
	"livesync/pkg/pool"
	"livesync/pkg/sanitize"
)

// ErrStopped is returned by queries issued after Stop
var ErrStopped = errors.New("orchestrator stopped")

const defaultQueueSize = 1024

// StatusPublisher receives a pool status snapshot after every change
type StatusPublisher interface {
	Save(ctx context.Context, status model.PoolStatus) error
}

// Alerter is told when a worker drops while the service is running
type Alerter interface {
	SendWorkerOffline(ctx context.Context, n notification.WorkerOfflineNotification) error
}

// Options sizing and timing
type Options struct {
	PoolSize        int
	ReconnectWindow time.Duration
	SeekCooldown    time.Duration
	CallTimeout     time.Duration
	QueueSize       int
}

// Option customizes an Orchestrator
type Option func(*Orchestrator)

// WithPublisher mirrors pool status snapshots to p
func WithPublisher(p StatusPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithAlerter reports worker losses to a
func WithAlerter(a Alerter) Option {
	return func(o *Orchestrator) { o.alerter = a }
}

// WithRunner replaces both the call queue and the alert runner
func WithRunner(run async.Runner) Option {
	return func(o *Orchestrator) {
		o.run = run
		o.notify = run
	}
}

// WithClock overrides time.Now for the registry, coordinator and result timestamps
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithScheduler overrides how delayed callbacks are scheduled. The callback
// is always executed on the event loop.
func WithScheduler(schedule func(d time.Duration, fn func())) Option {
	return func(o *Orchestrator) { o.after = schedule }
}

// WithSessionOptions passes extra options to the session registry
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *Orchestrator) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

// Orchestrator single serialization domain of the service. Every exported
// method enqueues work on the loop; none of the owned components are touched
// from any other goroutine.
type Orchestrator struct {
	pool     *pool.Pool
	registry *session.Registry
	router   *relay.Router
	playback *playback.Coordinator
	hub      *hub.Hub

	sanitizer *sanitize.Sanitizer

	publisher   StatusPublisher
	alerter     Alerter
	run         async.Runner
	calls       *async.Queue
	notify      async.Runner
	now         func() time.Time
	after       func(d time.Duration, fn func())
	sessionOpts []session.Option

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds an orchestrator around the transcription engine
func New(opts Options, engine playback.Engine, options ...Option) *Orchestrator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	o := &Orchestrator{
		hub:       hub.New(),
		sanitizer: sanitize.NewSanitizer(),
		now:       time.Now,
		after:     func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		events:    make(chan func(), opts.QueueSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(o)
	}
	if o.run == nil {
		// Engine control and status writes share one FIFO so they reach the
		// outside world in the order the loop issued them.
		o.calls = async.NewQueue(opts.CallTimeout, async.DefaultQueueSize)
		o.run = o.calls.Run
	}
	if o.notify == nil {
		o.notify = async.Detached(opts.CallTimeout)
	}

	o.pool = pool.New(opts.PoolSize)
	sessionOpts := append([]session.Option{session.WithClock(o.now)}, o.sessionOpts...)
	o.registry = session.NewRegistry(o.pool, opts.ReconnectWindow, sessionOpts...)
	o.router = relay.NewRouter(o.registry, o.pool, o.hub)
	o.playback = playback.NewCoordinator(engine, o.run, o.schedule, opts.SeekCooldown, o.now)
	return o
}

// Start launches the event loop
func (o *Orchestrator) Start() {
	o.startOnce.Do(func() {
		go o.loop()
		logger.InfoCtx(context.Background(), "orchestrator started with %d worker slots", o.pool.Size())
	})
}

// Stop exits the loop without draining queued events, then closes every
// connection. Safe to call more than once.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.stopOnce.Do(func() {
		close(o.quit)
		o.startOnce.Do(func() { close(o.done) })
	})
	select {
	case <-o.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	// The loop has exited; the hub is ours now.
	o.hub.CloseAll()
	if o.calls != nil {
		return o.calls.Close(ctx)
	}
	return nil
}

func (o *Orchestrator) loop() {
	defer close(o.done)
	for {
		select {
		case fn := <-o.events:
			o.exec(fn)
		case <-o.quit:
			return
		}
	}
}

func (o *Orchestrator) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(context.Background(), "event handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}

// submit enqueues fn in arrival order. Returns false once stopped.
func (o *Orchestrator) submit(fn func()) bool {
	select {
	case <-o.quit:
		return false
	default:
	}
	select {
	case o.events <- fn:
		return true
	case <-o.quit:
		return false
	}
}

// call runs fn on the loop and waits for it
func (o *Orchestrator) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !o.submit(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.quit:
		return ErrStopped
	}
}

// schedule is the coordinator's timer: fn fires on the loop, never on the
// timer goroutine
func (o *Orchestrator) schedule(d time.Duration, fn func()) {
	o.after(d, func() { o.submit(fn) })
}

// Connect registers a live connection
func (o *Orchestrator) Connect(conn hub.Conn) bool {
	return o.submit(func() {
		o.hub.Add(conn)
		logger.DebugCtx(logger.WithTrace(context.Background(), conn.ID()), "connected (%d live)", o.hub.Count())
	})
}

// Disconnect handles a closed connection, worker or client
func (o *Orchestrator) Disconnect(connID string) bool {
	return o.submit(func() {
		o.handleDisconnect(logger.WithTrace(context.Background(), connID), connID)
	})
}

// HandleFrame decodes one inbound frame and dispatches it on the loop.
// Frames that fail to decode are logged and dropped.
func (o *Orchestrator) HandleFrame(connID string, frame []byte) bool {
	msg, err := model.Decode(frame)
	if err != nil {
		logger.WarnCtx(logger.WithTrace(context.Background(), connID), "dropping frame: %v", err)
		return false
	}
	return o.submit(func() {
		o.dispatch(logger.WithTrace(context.Background(), connID), connID, msg)
	})
}

// IngestResult broadcasts an AI engine result to every connection and
// returns how many accepted it
func (o *Orchestrator) IngestResult(ctx context.Context, resultType string, data json.RawMessage) (int, error) {
	var delivered int
	err := o.call(ctx, func() {
		delivered = o.router.BroadcastAll(constants.EventAIResult, model.AIResult{
			Type:      resultType,
			Data:      data,
			Timestamp: o.now().UTC(),
		})
	})
	return delivered, err
}

// Status pool occupancy snapshot
func (o *Orchestrator) Status(ctx context.Context) (model.PoolStatus, error) {
	var status model.PoolStatus
	err := o.call(ctx, func() { status = o.registry.Status() })
	return status, err
}

// Playback transcription engine state
func (o *Orchestrator) Playback(ctx context.Context) (playback.State, error) {
	var state playback.State
	err := o.call(ctx, func() { state = o.playback.State() })
	return state, err
}

// ConnectedCount number of live connections
func (o *Orchestrator) ConnectedCount(ctx context.Context) (int, error) {
	var n int
	err := o.call(ctx, func() { n = o.hub.Count() })
	return n, err
}

// Sweep expires stale reconnect holds. Returns the expired session ids.
func (o *Orchestrator) Sweep(ctx context.Context) ([]string, error) {
	var expired []string
	err := o.call(ctx, func() { expired = o.sweep(ctx) })
	return expired, err
}

// PublishStatus broadcasts and mirrors the current pool status
func (o *Orchestrator) PublishStatus(ctx context.Context) error {
	return o.call(ctx, func() { o.publishStatus(ctx) })
}
