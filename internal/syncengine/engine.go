// Package syncengine keeps one session's layout consistent across every
// device attached to it.
//
// An Engine owns the session's layout.Store and wires it to the two ways
// state leaves and enters a device:
//
//   - the realtime channel, which carries small partial changes between
//     devices as they happen, and
//   - the persistence backend, which holds the authoritative copy for
//     devices that join later.
//
// Every local change is applied optimistically, published to peers at once,
// and pushed to the backend (debounced for continuous gestures such as drag
// and resize). Remote changes are applied with the remote-apply guard held
// so they never bounce back out.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pseudocoder/layoutsync/internal/clock"
	"github.com/pseudocoder/layoutsync/internal/codec"
	"github.com/pseudocoder/layoutsync/internal/guard"
	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/realtime"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// DefaultDebounceWindow is the quiet period before a continuous change is
// pushed to the backend.
const DefaultDebounceWindow = 300 * time.Millisecond

var (
	// ErrAlreadyAttached is returned by a second Attach.
	ErrAlreadyAttached = errors.New("syncengine: already attached")

	// ErrDetached is returned by Attach after Detach.
	ErrDetached = errors.New("syncengine: engine detached")
)

// Persistence is the backend holding the authoritative layout.
// *persist.Client implements it.
type Persistence interface {
	FetchLayout(ctx context.Context, sessionID string) (layout.SessionLayout, error)
	PushLayout(ctx context.Context, sessionID string, patch wire.LayoutPatch) (wire.LayoutFields, error)
	PushAgentLayout(ctx context.Context, sessionID, agentID string, patch wire.AgentPatch) (layout.AgentLayout, error)
	PushFilePreviewLayout(ctx context.Context, sessionID, previewID string, patch wire.FilePreviewPatch) (layout.FilePreviewLayout, error)
	PushEditorLayout(ctx context.Context, sessionID string, patch wire.EditorPatch) (layout.EditorLayout, error)
}

// Options configures an Engine.
type Options struct {
	SessionID string
	UserID    string

	// DeviceID identifies this device on the channel. Defaults to
	// NewDeviceID().
	DeviceID string

	Persistence Persistence
	Channel     realtime.Channel

	// Listener is optional.
	Listener Listener

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// DebounceWindow defaults to DefaultDebounceWindow.
	DebounceWindow time.Duration
}

// Engine synchronizes the layout of one attached session.
//
// Setters may be called from any goroutine and always make a local change:
// the store is updated, the change is published and it is pushed. Remote
// applications are serialized among themselves and run with the guard held.
// Listener callbacks receive the RemoteScope of their application; its
// setters update the store and produce no outbound traffic.
type Engine struct {
	sessionID string
	userID    string
	deviceID  string

	store    *layout.Store
	guard    *guard.Guard
	persist  Persistence
	channel  realtime.Channel
	listener Listener
	pusher   *pusher

	// applyMu serializes remote applications: bootstrap, resync, and
	// channel messages. Local setters never take it.
	applyMu sync.Mutex

	// resyncMu serializes bootstrap and resyncs so only one journal is
	// ever live.
	resyncMu sync.Mutex

	// localMu covers a local store mutation together with its journal
	// entry, and a snapshot install together with the journal replay.
	localMu sync.Mutex
	journal *journal

	mu          sync.Mutex
	status      Status
	attached    bool
	detached    bool
	unsubscribe func()
}

// NewDeviceID returns a random device identifier.
func NewDeviceID() string {
	return uuid.NewString()
}

// New returns an engine for opts.SessionID. The engine does nothing until
// Attach is called.
func New(opts Options) (*Engine, error) {
	if opts.SessionID == "" {
		return nil, fmt.Errorf("syncengine: session id is required")
	}
	if opts.Persistence == nil {
		return nil, fmt.Errorf("syncengine: persistence is required")
	}
	if opts.Channel == nil {
		return nil, fmt.Errorf("syncengine: channel is required")
	}
	if opts.DeviceID == "" {
		opts.DeviceID = NewDeviceID()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.Listener == nil {
		opts.Listener = ListenerFuncs{}
	}

	return &Engine{
		sessionID: opts.SessionID,
		userID:    opts.UserID,
		deviceID:  opts.DeviceID,
		store:     layout.NewStore(),
		guard:     guard.New(),
		persist:   opts.Persistence,
		channel:   opts.Channel,
		listener:  opts.Listener,
		pusher:    newPusher(opts.Clock, opts.DebounceWindow),
		status:    StatusLoading,
	}, nil
}

// SessionID returns the attached session id.
func (e *Engine) SessionID() string { return e.sessionID }

// DeviceID returns the id this engine tags its messages with.
func (e *Engine) DeviceID() string { return e.deviceID }

// Attach subscribes to the channel and bootstraps the layout from the
// backend. A bootstrap failure leaves the engine usable with status
// StatusUnavailable and returns a layout.bootstrap_failed error.
func (e *Engine) Attach(ctx context.Context) error {
	e.mu.Lock()
	switch {
	case e.detached:
		e.mu.Unlock()
		return ErrDetached
	case e.attached:
		e.mu.Unlock()
		return ErrAlreadyAttached
	}
	e.attached = true
	e.mu.Unlock()

	unsubscribe := e.channel.Subscribe(e.HandleMessage)
	e.mu.Lock()
	e.unsubscribe = unsubscribe
	e.mu.Unlock()

	log.Printf("syncengine: attaching device %s to session %s", e.deviceID, e.sessionID)
	return e.bootstrap(ctx)
}

// Detach unsubscribes from the channel and releases pending debounced
// pushes. Queued pushes still complete in the background; call Drain first
// to wait for them.
func (e *Engine) Detach() {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return
	}
	e.detached = true
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if n := e.pusher.flush(); n > 0 {
		log.Printf("syncengine: flushed %d pending pushes on detach", n)
	}
	e.pusher.close()
	log.Printf("syncengine: detached device %s from session %s", e.deviceID, e.sessionID)
}

// Drain releases pending debounced pushes and waits until every queued
// push has completed.
func (e *Engine) Drain(ctx context.Context) error {
	e.pusher.flush()
	return e.pusher.wait(ctx)
}

// Status returns the load state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Snapshot returns a copy of the current layout together with the load
// state it was taken in.
func (e *Engine) Snapshot() (layout.SessionLayout, Status) {
	return e.store.Snapshot(), e.Status()
}

// PushFailures returns the number of persistence failures swallowed so far.
func (e *Engine) PushFailures() int {
	return e.pusher.failureCount()
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	changed := e.status != s
	e.status = s
	e.mu.Unlock()

	if changed {
		e.listener.StatusChanged(s)
	}
}

func (e *Engine) isDetached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detached
}

// HandleMessage applies a message received on the session topic. The
// engine subscribes it on Attach; it is exported for channels that are
// driven by hand.
//
// Messages from this device, from other sessions, and malformed messages
// are dropped whole.
func (e *Engine) HandleMessage(msg wire.Message) {
	if msg.DeviceID == e.deviceID {
		return
	}
	if msg.SessionID != e.sessionID {
		log.Printf("syncengine: dropping %s message for session %q", msg.Type, msg.SessionID)
		return
	}

	ev, err := codec.DecodeEvent(msg)
	if err != nil {
		log.Printf("syncengine: dropping message from device %s: %v", msg.DeviceID, err)
		return
	}

	if _, ok := ev.(codec.FullSyncRequested); ok {
		if err := e.Resync(context.Background()); err != nil {
			log.Printf("syncengine: full sync requested by device %s failed: %v", msg.DeviceID, err)
		}
		return
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	e.guard.RunScoped(func(s *guard.Scope) {
		if e.applyRemote(ev) {
			e.listener.RemoteChange(e.newRemoteScope(s), ev)
		}
	})
}

// applyRemote mutates the store for ev and reports whether it changed.
func (e *Engine) applyRemote(ev codec.Event) bool {
	switch ev := ev.(type) {
	case codec.ViewModeChanged:
		changed, err := e.store.SetViewMode(ev.ViewMode)
		return err == nil && changed

	case codec.ActiveAgentChanged:
		return e.store.SetActiveAgent(ev.AgentID)

	case codec.AgentLayoutChanged:
		changed, _ := e.store.ApplyAgentUpdate(ev.AgentID, ev.Update)
		return changed

	case codec.FilePreviewLayoutChanged:
		changed, _, evicted := e.store.ApplyFilePreviewUpdate(ev.PreviewID, ev.Update)
		if evicted != "" {
			log.Printf("syncengine: preview %s replaced %s for the same path", ev.PreviewID, evicted)
		}
		return changed

	case codec.EditorLayoutChanged:
		return e.store.ApplyEditorUpdate(ev.Update)
	}
	return false
}

// Resync re-fetches the layout and replaces the store contents with it.
// Local changes made while the fetch is in flight survive: they are
// journaled and re-applied on top of the fetched layout. They were already
// published and pushed when they were made, so the replay is local only.
func (e *Engine) Resync(ctx context.Context) error {
	e.resyncMu.Lock()
	defer e.resyncMu.Unlock()

	j := e.openJournal()
	remote, err := e.persist.FetchLayout(ctx, e.sessionID)
	if err != nil {
		e.closeJournal()
		log.Printf("syncengine: resync of session %s failed: %v", e.sessionID, err)
		return err
	}

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	scope := e.guard.Enter()
	defer scope.Release()

	e.localMu.Lock()
	e.store.Replace(remote)
	replayed := j.replay(e.store)
	e.journal = nil
	snap := e.store.Snapshot()
	e.localMu.Unlock()

	if replayed > 0 {
		log.Printf("syncengine: resync kept %d local changes made during the fetch", replayed)
	}
	e.setStatus(StatusReady)
	e.listener.SnapshotApplied(e.newRemoteScope(scope), snap)
	return nil
}

// openJournal starts recording local changes. Callers hold resyncMu.
func (e *Engine) openJournal() *journal {
	j := newJournal()
	e.localMu.Lock()
	e.journal = j
	e.localMu.Unlock()
	return j
}

func (e *Engine) closeJournal() {
	e.localMu.Lock()
	e.journal = nil
	e.localMu.Unlock()
}

// RequestFullSync asks every peer on the session to re-fetch the layout.
func (e *Engine) RequestFullSync(ctx context.Context) error {
	msg, err := codec.EncodeEvent(e.sessionID, e.userID, e.deviceID, codec.FullSyncRequested{})
	if err != nil {
		return err
	}
	return e.channel.Publish(ctx, msg)
}

// publish sends ev to peers. Failures are logged and swallowed.
func (e *Engine) publish(ev codec.Event) {
	msg, err := codec.EncodeEvent(e.sessionID, e.userID, e.deviceID, ev)
	if err != nil {
		log.Printf("syncengine: encode %s: %v", ev.MessageType(), err)
		return
	}
	if err := e.channel.Publish(context.Background(), msg); err != nil {
		log.Printf("syncengine: publish %s failed: %v", ev.MessageType(), err)
	}
}
