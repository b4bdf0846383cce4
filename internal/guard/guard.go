// Package guard tracks whether a device is currently applying state that
// arrived from elsewhere (a realtime message or a bootstrap snapshot).
//
// While the guard is held, mutations made as part of the application still
// update the layout store but must not be published or persisted. Otherwise
// a change received from another device would bounce straight back out as if
// it had been made here.
//
// Remote applications and local changes run on different goroutines, so
// "the guard is up" says nothing about the caller. Code on the apply path
// is handed the Scope it runs under; Scope.Held is the check that decides
// whether a mutation is part of the application. Guard.Active only reports
// that some application is in progress.
package guard

import "sync"

// State is the application mode of a device.
type State int

const (
	// Idle means changes are local and should be propagated.
	Idle State = iota
	// ApplyingRemote means changes are the result of applying remote state.
	ApplyingRemote
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ApplyingRemote:
		return "applying_remote"
	default:
		return "unknown"
	}
}

// Guard is a reference-counted ApplyingRemote flag. Holders nest, so an
// application that triggers another application (for example a bootstrap
// that replays buffered messages) keeps the guard up until the outermost
// holder releases it.
type Guard struct {
	mu    sync.Mutex
	depth int
}

// New returns an idle guard.
func New() *Guard {
	return &Guard{}
}

// Scope is one holder's claim on the guard.
type Scope struct {
	g    *Guard
	once sync.Once

	mu   sync.Mutex
	held bool
}

// Enter raises the guard and returns the caller's Scope.
func (g *Guard) Enter() *Scope {
	g.mu.Lock()
	g.depth++
	g.mu.Unlock()
	return &Scope{g: g, held: true}
}

// Held reports whether the scope has not been released yet.
func (s *Scope) Held() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// Release gives up the claim. It is idempotent, so it is safe to both
// defer it and call it early.
func (s *Scope) Release() {
	s.once.Do(func() {
		s.mu.Lock()
		s.held = false
		s.mu.Unlock()

		s.g.mu.Lock()
		if s.g.depth > 0 {
			s.g.depth--
		}
		s.g.mu.Unlock()
	})
}

// Acquire enters ApplyingRemote and returns the function that leaves it.
func (g *Guard) Acquire() (release func()) {
	return g.Enter().Release
}

// Run calls fn with the guard held. The guard is released when fn returns,
// even if it panics.
func (g *Guard) Run(fn func()) {
	release := g.Acquire()
	defer release()
	fn()
}

// RunScoped is Run for functions that need their Scope.
func (g *Guard) RunScoped(fn func(*Scope)) {
	s := g.Enter()
	defer s.Release()
	fn(s)
}

// RunErr is Run for functions that return an error.
func (g *Guard) RunErr(fn func() error) error {
	release := g.Acquire()
	defer release()
	return fn()
}

// Active reports whether remote state is being applied.
func (g *Guard) Active() bool {
	return g.State() == ApplyingRemote
}

// State returns the current application mode.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.depth > 0 {
		return ApplyingRemote
	}
	return Idle
}
