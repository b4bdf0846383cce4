// Package debounce coalesces bursts of calls into a single trailing call.
//
// A Debouncer holds at most one pending call. Every Call replaces the
// pending payload and restarts the window; when the window elapses with no
// further calls, the last payload is delivered. Earlier payloads are
// discarded, never queued or merged.
//
// Registry keeps one Debouncer per logical target (for example one per
// agent geometry) so bursts on different targets never starve each other.
package debounce

import (
	"sync"
	"time"

	"github.com/pseudocoder/layoutsync/internal/clock"
)

// Debouncer delays fn until window has passed without another Call.
// It is safe for concurrent use.
type Debouncer[T any] struct {
	clk    clock.Clock
	window time.Duration
	fn     func(T)

	mu      sync.Mutex
	timer   clock.Timer
	gen     uint64
	pending bool
	payload T
}

// New returns a Debouncer that calls fn with the last payload once window
// has elapsed since the most recent Call.
func New[T any](clk clock.Clock, window time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{clk: clk, window: window, fn: fn}
}

// Call records v as the pending payload and restarts the window.
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	gen := d.gen
	d.payload = v
	d.pending = true
	d.mu.Unlock()

	// AfterFunc may run the callback synchronously for a zero window, so
	// it is scheduled without holding mu.
	timer := d.clk.AfterFunc(d.window, func() { d.fire(gen) })

	d.mu.Lock()
	if d.gen == gen && d.pending {
		d.timer = timer
	} else {
		timer.Stop()
	}
	d.mu.Unlock()
}

// fire delivers the pending payload if no Call has superseded timer gen.
func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	if !d.pending || gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.take()
	d.mu.Unlock()

	d.fn(v)
}

// Flush delivers the pending payload immediately. It reports whether a call
// was pending.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	v := d.take()
	d.mu.Unlock()

	d.fn(v)
	return true
}

// Stop discards the pending payload without delivering it.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.take()
}

// Pending reports whether a call is waiting for its window to elapse.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// take clears the pending state and returns the payload. Callers hold mu.
func (d *Debouncer[T]) take() T {
	var zero T
	v := d.payload
	d.payload = zero
	d.pending = false
	d.gen++
	return v
}
