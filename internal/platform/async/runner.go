// Package async is the single boundary for best-effort side effects (last-seen touches, device
// refreshes). Tasks run off the request path with their own timeout; failures are logged and dropped.
package async

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout is the max time allowed for a single best-effort task.
const DefaultTimeout = 5 * time.Second

// Dispatcher runs best-effort tasks.
type Dispatcher interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Runner runs each task in its own goroutine with context.Background() and a timeout,
// so request cancellation does not abort in-flight work.
type Runner struct {
	log     zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner returns a Runner. timeout <= 0 uses DefaultTimeout.
func NewRunner(log zerolog.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{log: log, timeout: timeout}
}

// Go starts fn. Errors and panics are logged, never propagated.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		run(r.log, r.timeout, name, fn)
	}()
}

// Wait blocks until every started task finished or ctx is done. Used on shutdown.
func (r *Runner) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn().Msg("async: shutdown before best-effort tasks drained")
	}
}

// Inline runs tasks synchronously on the caller's goroutine. Used by one-shot tools and tests.
type Inline struct {
	Log zerolog.Logger
}

func (i Inline) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	run(i.Log, DefaultTimeout, name, fn)
}

func run(log zerolog.Logger, timeout time.Duration, name string, fn func(ctx context.Context) error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("task", name).Interface("panic", p).Msg("async: best-effort task panicked")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("task", name).Msg("async: best-effort task failed")
	}
}
