// Package clock provides an injectable time abstraction.
//
// Components that schedule work (the debounce scheduler, the realtime
// reconnect loop) take a Clock instead of calling the time package directly.
// Production code uses Real(); tests use Fake() and move time with Advance.
package clock

import "time"

// Clock abstracts the time operations layoutsync needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f. The returned Timer can cancel
	// or reschedule the pending call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the Timer from firing. Returns true if the call stops
	// the timer, false if it has already fired or been stopped.
	Stop() bool

	// Reset changes the timer to fire after d. Returns true if the timer
	// was active before the reset.
	Reset(d time.Duration) bool
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
