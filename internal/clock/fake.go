package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock for tests. Time stands still until
// Advance is called. AfterFunc callbacks run synchronously inside Advance,
// in deadline order, on the goroutine that called Advance.
//
// Do not call Advance from within an AfterFunc callback.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	callback func()
	stopped  bool
	fired    bool
	queued   bool
}

// Fake returns a FakeClock initialised to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f to run once the clock has advanced by d.
// If d <= 0, f runs synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	if d <= 0 {
		f()
		return &fakeTimer{clock: c, waiter: &fakeWaiter{fired: true, callback: f}}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		callback: f,
		queued:   true,
	}
	c.waiters = append(c.waiters, waiter)
	return &fakeTimer{clock: c, waiter: waiter}
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d and fires every timer whose deadline
// falls within the new time.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		toFire := c.collectExpired(target)
		if len(toFire) == 0 {
			return
		}
		for _, w := range toFire {
			w.callback()
		}
	}
}

// collectExpired marks due waiters as fired and drops dead ones.
func (c *FakeClock) collectExpired(target time.Time) []*fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*fakeWaiter
	live := c.waiters[:0]
	for _, w := range c.waiters {
		switch {
		case w.stopped || w.fired:
			w.queued = false
		case !w.deadline.After(target):
			w.fired = true
			w.queued = false
			expired = append(expired, w)
		default:
			live = append(live, w)
		}
	}
	c.waiters = live

	sort.SliceStable(expired, func(i, j int) bool {
		return expired[i].deadline.Before(expired[j].deadline)
	})
	return expired
}

type fakeTimer struct {
	clock  *FakeClock
	waiter *fakeWaiter
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.waiter.stopped || t.waiter.fired {
		return false
	}
	t.waiter.stopped = true
	return true
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	wasActive := !t.waiter.stopped && !t.waiter.fired
	t.waiter.stopped = false
	t.waiter.fired = false
	t.waiter.deadline = t.clock.current.Add(d)
	if !t.waiter.queued {
		t.waiter.queued = true
		t.clock.waiters = append(t.clock.waiters, t.waiter)
	}
	return wasActive
}
