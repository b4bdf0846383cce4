package syncengine

import (
	"github.com/pseudocoder/layoutsync/internal/codec"
	"github.com/pseudocoder/layoutsync/internal/layout"
)

// Status is the load state of an attached session layout.
type Status int

const (
	// StatusLoading means the first snapshot has not been applied yet.
	StatusLoading Status = iota
	// StatusReady means a snapshot from the backend has been applied.
	StatusReady
	// StatusUnavailable means the bootstrap fetch failed. The engine keeps
	// working on the local layout and the realtime channel.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Listener is the UI-side collaborator notified when remote state lands in
// the store.
//
// Callbacks run synchronously on the goroutine performing the application.
// Writes that mirror the remote change back into the layout go through the
// RemoteScope passed in, which updates the store without any outbound
// traffic. Calling the Engine's setters from a callback makes a local
// change, although an unchanged value is still a no-op. A listener must not
// call Attach, Resync, RequestFullSync or Detach.
type Listener interface {
	// StatusChanged reports a load state transition.
	StatusChanged(s Status)

	// SnapshotApplied reports that a fetched layout replaced the store
	// contents, during bootstrap or a resync.
	SnapshotApplied(r *RemoteScope, l layout.SessionLayout)

	// RemoteChange reports a peer's change that modified the store.
	RemoteChange(r *RemoteScope, ev codec.Event)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnStatus   func(Status)
	OnSnapshot func(*RemoteScope, layout.SessionLayout)
	OnRemote   func(*RemoteScope, codec.Event)
}

func (f ListenerFuncs) StatusChanged(s Status) {
	if f.OnStatus != nil {
		f.OnStatus(s)
	}
}

func (f ListenerFuncs) SnapshotApplied(r *RemoteScope, l layout.SessionLayout) {
	if f.OnSnapshot != nil {
		f.OnSnapshot(r, l)
	}
}

func (f ListenerFuncs) RemoteChange(r *RemoteScope, ev codec.Event) {
	if f.OnRemote != nil {
		f.OnRemote(r, ev)
	}
}
