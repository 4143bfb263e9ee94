// Package async runs best-effort external calls off the caller's goroutine.
package async

import (
	"context"
	"time"

	"livesync/pkg/logger"
)

// Runner issues call with a bounded context. Implementations must not block
// the caller on the call's completion.
type Runner func(ctx context.Context, name string, call func(ctx context.Context) error)

// Detached returns a Runner that executes each call in its own goroutine
// with the given timeout. Results are only logged.
func Detached(timeout time.Duration) Runner {
	return func(ctx context.Context, name string, call func(ctx context.Context) error) {
		parent := context.WithoutCancel(ctx)
		go func() {
			callCtx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()

			start := time.Now()
			if err := call(callCtx); err != nil {
				logger.WarnCtx(callCtx, "%s failed after %v: %v", name, time.Since(start), err)
				return
			}
			logger.DebugCtx(callCtx, "%s completed in %v", name, time.Since(start))
		}()
	}
}

// Inline runs the call synchronously. Used by tests and by callers that
// already sit on a background goroutine.
func Inline(timeout time.Duration) Runner {
	return func(ctx context.Context, name string, call func(ctx context.Context) error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := call(callCtx); err != nil {
			logger.WarnCtx(callCtx, "%s failed: %v", name, err)
		}
	}
}
