// Package debounce coalesces bursts of calls into one delayed call carrying
// the most recent argument.
package debounce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultDelay is the quiet period used when none is configured.
const DefaultDelay = 800 * time.Millisecond

// Debouncer runs fn once per quiet period of length d, with the argument of
// the last Call. fn never runs on the caller's goroutine. Errors and panics
// from fn are logged and go no further.
type Debouncer[T any] struct {
	d      time.Duration
	fn     func(context.Context, T) error
	logger *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	latest  T
	gen     uint64
	stopped bool

	running sync.Mutex
}

// New returns a Debouncer. A non-positive d uses DefaultDelay.
func New[T any](d time.Duration, fn func(context.Context, T) error, logger *slog.Logger) *Debouncer[T] {
	if d <= 0 {
		d = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Debouncer[T]{d: d, fn: fn, logger: logger}
}

// Call records v and restarts the quiet period.
func (b *Debouncer[T]) Call(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.latest = v
	b.pending = true
	b.gen++
	gen := b.gen
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.d, func() { b.fire(gen) })
}

// fire runs fn if no later Call superseded generation gen.
func (b *Debouncer[T]) fire(gen uint64) {
	b.mu.Lock()
	if !b.pending || gen != b.gen || b.stopped {
		b.mu.Unlock()
		return
	}
	v := b.take()
	b.mu.Unlock()

	b.run(v)
}

// take must be called with mu held.
func (b *Debouncer[T]) take() T {
	v := b.latest
	var zero T
	b.latest = zero
	b.pending = false
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return v
}

func (b *Debouncer[T]) run(v T) {
	// Two runs never overlap, so a flush and a timer firing together still
	// reach fn in order.
	b.running.Lock()
	defer b.running.Unlock()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("debounced call panicked", "panic", fmt.Sprint(r))
		}
	}()
	if err := b.fn(context.Background(), v); err != nil {
		b.logger.Warn("debounced call failed", "error", err)
	}
}

// Flush runs a pending call now, on the calling goroutine, and waits for it.
// It reports whether there was anything to run.
func (b *Debouncer[T]) Flush() bool {
	b.mu.Lock()
	if !b.pending || b.stopped {
		b.mu.Unlock()
		return false
	}
	v := b.take()
	b.mu.Unlock()

	b.run(v)
	return true
}

// Pending reports whether a call is waiting for its quiet period to end.
func (b *Debouncer[T]) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending
}

// Stop drops any pending call without running it. Later Calls are ignored.
func (b *Debouncer[T]) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.take()
}
