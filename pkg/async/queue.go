package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"livesync/pkg/logger"
)

const DefaultQueueSize = 256

type queuedCall struct {
	ctx  context.Context
	name string
	call func(ctx context.Context) error
}

// Queue executes calls one at a time in submission order on a single
// goroutine, each bounded by the timeout. Run never blocks: when the buffer
// is full the call is dropped and logged.
type Queue struct {
	timeout time.Duration
	calls   chan queuedCall
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewQueue starts the queue goroutine
func NewQueue(timeout time.Duration, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		timeout: timeout,
		calls:   make(chan queuedCall, size),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.loop()
	return q
}

// Run enqueues call. Its signature matches Runner.
func (q *Queue) Run(ctx context.Context, name string, call func(ctx context.Context) error) {
	select {
	case <-q.quit:
		logger.WarnCtx(ctx, "%s dropped, call queue closed", name)
		return
	default:
	}
	select {
	case q.calls <- queuedCall{ctx: context.WithoutCancel(ctx), name: name, call: call}:
	default:
		logger.WarnCtx(ctx, "%s dropped, call queue full (%d)", name, cap(q.calls))
	}
}

// Close stops accepting calls, runs what is already queued and waits for the
// goroutine to exit or ctx to expire
func (q *Queue) Close(ctx context.Context) error {
	q.once.Do(func() { close(q.quit) })
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		select {
		case c := <-q.calls:
			q.exec(c)
		case <-q.quit:
			for {
				select {
				case c := <-q.calls:
					q.exec(c)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) exec(c queuedCall) {
	callCtx, cancel := context.WithTimeout(c.ctx, q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(callCtx, "%s panic: %v\n%s", c.name, r, debug.Stack())
		}
	}()

	start := time.Now()
	if err := c.call(callCtx); err != nil {
		logger.WarnCtx(callCtx, "%s failed after %v: %v", c.name, time.Since(start), err)
		return
	}
	logger.DebugCtx(callCtx, "%s completed in %v", c.name, time.Since(start))
}
