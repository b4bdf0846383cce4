package debounce

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pseudocoder/layoutsync/internal/clock"
)

// Target identifies one logical debounce target, such as the grid span of
// agent "a1".
type Target struct {
	Kind string
	ID   string
}

// String returns "kind/id".
func (t Target) String() string {
	return fmt.Sprintf("%s/%s", t.Kind, t.ID)
}

// Registry owns one Debouncer per Target. Debouncers are created lazily on
// first use and then reused for the lifetime of the registry, so a target's
// pending call survives any number of Calls.
type Registry[T any] struct {
	clk    clock.Clock
	window time.Duration
	fn     func(Target, T)

	mu         sync.Mutex
	debouncers map[Target]*Debouncer[T]
}

// NewRegistry returns a Registry whose debouncers share clk and window and
// deliver to fn.
func NewRegistry[T any](clk clock.Clock, window time.Duration, fn func(Target, T)) *Registry[T] {
	return &Registry[T]{
		clk:        clk,
		window:     window,
		fn:         fn,
		debouncers: make(map[Target]*Debouncer[T]),
	}
}

// Get returns the Debouncer for target, creating it on first use.
func (r *Registry[T]) Get(target Target) *Debouncer[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.debouncers[target]
	if !ok {
		d = New(r.clk, r.window, func(v T) { r.fn(target, v) })
		r.debouncers[target] = d
	}
	return d
}

// Call forwards v to the Debouncer for target.
func (r *Registry[T]) Call(target Target, v T) {
	r.Get(target).Call(v)
}

// FlushAll delivers every pending call immediately, in target order.
func (r *Registry[T]) FlushAll() int {
	flushed := 0
	for _, d := range r.snapshot() {
		if d.Flush() {
			flushed++
		}
	}
	return flushed
}

// StopAll discards every pending call.
func (r *Registry[T]) StopAll() {
	for _, d := range r.snapshot() {
		d.Stop()
	}
}

// Pending returns the targets that have a call waiting.
func (r *Registry[T]) Pending() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Target
	for t, d := range r.debouncers {
		if d.Pending() {
			out = append(out, t)
		}
	}
	sortTargets(out)
	return out
}

// Len returns the number of debouncers created so far.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.debouncers)
}

func (r *Registry[T]) snapshot() []*Debouncer[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets := make([]Target, 0, len(r.debouncers))
	for t := range r.debouncers {
		targets = append(targets, t)
	}
	sortTargets(targets)

	out := make([]*Debouncer[T], len(targets))
	for i, t := range targets {
		out[i] = r.debouncers[t]
	}
	return out
}

func sortTargets(ts []Target) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Kind != ts[j].Kind {
			return ts[i].Kind < ts[j].Kind
		}
		return ts[i].ID < ts[j].ID
	})
}
