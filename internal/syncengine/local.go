package syncengine

import (
	"context"
	"errors"
	"log"

	"github.com/pseudocoder/layoutsync/internal/codec"
	"github.com/pseudocoder/layoutsync/internal/debounce"
	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// ErrNoCardID is returned by OpenEditor for an empty card id.
var ErrNoCardID = errors.New("syncengine: editor card id is required")

// Debounce target kinds for continuous changes.
const (
	targetAgentGridSpan   = "agent.grid_span"
	targetAgentPosition   = "agent.position"
	targetPreviewGridSpan = "preview.grid_span"
	targetEditorGridSpan  = "editor.grid_span"
	targetEditorFreeform  = "editor.freeform_position"
)

// storeOp is a local mutation. It is kept so it can be replayed after a
// resync replaces the store contents.
type storeOp func(s *layout.Store) (bool, error)

// Every setter below has one implementation taking rs, the origin of the
// change. A nil rs is the device itself: the change is journaled during a
// fetch and propagated. A non-nil rs is a remote application mirroring its
// change through the UI: the store is updated and nothing else happens.

// mutate applies op to the store.
func (e *Engine) mutate(rs *RemoteScope, key string, op storeOp) (bool, error) {
	if rs != nil && !rs.scope.Held() {
		return false, ErrScopeClosed
	}

	e.localMu.Lock()
	defer e.localMu.Unlock()

	changed, err := op(e.store)
	if err != nil || !changed {
		return false, err
	}
	if rs == nil && e.journal != nil {
		e.journal.record(key, op)
	}
	return true, nil
}

// outbound reports whether a change from rs should leave the device.
func (e *Engine) outbound(rs *RemoteScope) bool {
	return rs == nil && !e.isDetached()
}

// propagateNow publishes ev and pushes job immediately.
func (e *Engine) propagateNow(rs *RemoteScope, ev codec.Event, job pushJob) {
	if !e.outbound(rs) {
		return
	}
	e.publish(ev)
	e.pusher.now(job)
}

// propagateLater publishes ev and debounces job on target.
func (e *Engine) propagateLater(rs *RemoteScope, ev codec.Event, target debounce.Target, job pushJob) {
	if !e.outbound(rs) {
		return
	}
	e.publish(ev)
	e.pusher.later(target, job)
}

func (e *Engine) layoutJob(name string, patch wire.LayoutPatch) pushJob {
	return pushJob{name: name, run: func(ctx context.Context) error {
		_, err := e.persist.PushLayout(ctx, e.sessionID, patch)
		return err
	}}
}

func (e *Engine) agentJob(name, agentID string, patch wire.AgentPatch) pushJob {
	return pushJob{name: name + " " + agentID, run: func(ctx context.Context) error {
		_, err := e.persist.PushAgentLayout(ctx, e.sessionID, agentID, patch)
		return err
	}}
}

func (e *Engine) previewJob(name, previewID string, patch wire.FilePreviewPatch) pushJob {
	return pushJob{name: name + " " + previewID, run: func(ctx context.Context) error {
		_, err := e.persist.PushFilePreviewLayout(ctx, e.sessionID, previewID, patch)
		return err
	}}
}

func (e *Engine) editorJob(name string, patch wire.EditorPatch) pushJob {
	return pushJob{name: name, run: func(ctx context.Context) error {
		_, err := e.persist.PushEditorLayout(ctx, e.sessionID, patch)
		return err
	}}
}

// SetViewMode switches the view mode.
func (e *Engine) SetViewMode(m layout.ViewMode) error {
	return e.setViewMode(nil, m)
}

func (e *Engine) setViewMode(rs *RemoteScope, m layout.ViewMode) error {
	changed, err := e.mutate(rs, "view_mode", func(s *layout.Store) (bool, error) {
		return s.SetViewMode(m)
	})
	if err != nil || !changed {
		return err
	}
	e.propagateNow(rs, codec.ViewModeChanged{ViewMode: m},
		e.layoutJob("push view mode", wire.LayoutPatch{ViewMode: wire.Some(string(m))}))
	return nil
}

// SetActiveAgent focuses agentID. An empty id clears focus.
func (e *Engine) SetActiveAgent(agentID string) {
	e.setActiveAgent(nil, agentID)
}

func (e *Engine) setActiveAgent(rs *RemoteScope, agentID string) error {
	changed, err := e.mutate(rs, "active_agent", func(s *layout.Store) (bool, error) {
		return s.SetActiveAgent(agentID), nil
	})
	if err != nil || !changed {
		return err
	}
	patch := wire.LayoutPatch{ActiveAgentID: wire.Some(agentID)}
	if agentID == "" {
		patch.ActiveAgentID = wire.Null[string]()
	}
	e.propagateNow(rs, codec.ActiveAgentChanged{AgentID: agentID}, e.layoutJob("push active agent", patch))
	return nil
}

// SetAgentGridSpan resizes an agent in grid mode. The push is debounced.
func (e *Engine) SetAgentGridSpan(agentID string, span layout.GridSpan) {
	e.setAgentGridSpan(nil, agentID, span)
}

func (e *Engine) setAgentGridSpan(rs *RemoteScope, agentID string, span layout.GridSpan) error {
	changed, err := e.mutate(rs, "agent.grid_span/"+agentID, func(s *layout.Store) (bool, error) {
		return s.SetAgentGridSpan(agentID, span), nil
	})
	if err != nil || !changed {
		return err
	}
	update := layout.AgentUpdate{GridSpan: &span}
	e.propagateLater(rs, codec.AgentLayoutChanged{AgentID: agentID, Update: update},
		debounce.Target{Kind: targetAgentGridSpan, ID: agentID},
		e.agentJob("push agent grid span", agentID, codec.AgentPatchFromUpdate(update)))
	return nil
}

// SetAgentPosition moves an agent in freeform mode. The push is debounced.
func (e *Engine) SetAgentPosition(agentID string, pos layout.Position) {
	e.setAgentPosition(nil, agentID, pos)
}

func (e *Engine) setAgentPosition(rs *RemoteScope, agentID string, pos layout.Position) error {
	changed, err := e.mutate(rs, "agent.position/"+agentID, func(s *layout.Store) (bool, error) {
		return s.SetAgentPosition(agentID, pos), nil
	})
	if err != nil || !changed {
		return err
	}
	update := layout.AgentUpdate{Position: &pos}
	e.propagateLater(rs, codec.AgentLayoutChanged{AgentID: agentID, Update: update},
		debounce.Target{Kind: targetAgentPosition, ID: agentID},
		e.agentJob("push agent position", agentID, codec.AgentPatchFromUpdate(update)))
	return nil
}

// OpenFilePreview shows path in preview previewID. Another preview already
// showing path is closed locally.
func (e *Engine) OpenFilePreview(previewID, path string) {
	e.openFilePreview(nil, previewID, path)
}

func (e *Engine) openFilePreview(rs *RemoteScope, previewID, path string) error {
	var evicted string
	changed, err := e.mutate(rs, "preview.open/"+previewID, func(s *layout.Store) (bool, error) {
		p, _ := s.FilePreviewLayout(previewID)
		p.Path = path
		var changed bool
		changed, evicted = s.SetFilePreviewLayout(previewID, p)
		return changed, nil
	})
	if err != nil || !changed {
		return err
	}
	if evicted != "" {
		log.Printf("syncengine: preview %s replaced %s for %s", previewID, evicted, path)
	}
	if !e.outbound(rs) {
		return nil
	}

	p, _ := e.store.FilePreviewLayout(previewID)
	patch := codec.FilePreviewPatchFromLayout(p)
	e.propagateNow(rs, codec.FilePreviewLayoutChanged{PreviewID: previewID, Update: codec.FilePreviewUpdateFromPatch(patch)},
		e.previewJob("push file preview", previewID, patch))
	return nil
}

// SetFilePreviewDocked docks or undocks an open preview.
func (e *Engine) SetFilePreviewDocked(previewID string, docked bool) error {
	return e.setFilePreviewDocked(nil, previewID, docked)
}

func (e *Engine) setFilePreviewDocked(rs *RemoteScope, previewID string, docked bool) error {
	changed, err := e.mutate(rs, "preview.docked/"+previewID, func(s *layout.Store) (bool, error) {
		return s.SetFilePreviewDocked(previewID, docked)
	})
	if err != nil || !changed {
		return err
	}
	update := layout.FilePreviewUpdate{Docked: &docked}
	e.propagateNow(rs, codec.FilePreviewLayoutChanged{PreviewID: previewID, Update: update},
		e.previewJob("push preview docked", previewID, codec.FilePreviewPatchFromUpdate(update)))
	return nil
}

// SetFilePreviewPinned pins or unpins an open preview.
func (e *Engine) SetFilePreviewPinned(previewID string, pinned bool) error {
	return e.setFilePreviewPinned(nil, previewID, pinned)
}

func (e *Engine) setFilePreviewPinned(rs *RemoteScope, previewID string, pinned bool) error {
	changed, err := e.mutate(rs, "preview.pinned/"+previewID, func(s *layout.Store) (bool, error) {
		return s.SetFilePreviewPinned(previewID, pinned)
	})
	if err != nil || !changed {
		return err
	}
	update := layout.FilePreviewUpdate{Pinned: &pinned}
	e.propagateNow(rs, codec.FilePreviewLayoutChanged{PreviewID: previewID, Update: update},
		e.previewJob("push preview pinned", previewID, codec.FilePreviewPatchFromUpdate(update)))
	return nil
}

// SetFilePreviewGridSpan resizes an open preview. The push is debounced.
func (e *Engine) SetFilePreviewGridSpan(previewID string, span layout.GridSpan) error {
	return e.setFilePreviewGridSpan(nil, previewID, span)
}

func (e *Engine) setFilePreviewGridSpan(rs *RemoteScope, previewID string, span layout.GridSpan) error {
	changed, err := e.mutate(rs, "preview.grid_span/"+previewID, func(s *layout.Store) (bool, error) {
		return s.SetFilePreviewGridSpan(previewID, span)
	})
	if err != nil || !changed {
		return err
	}
	update := layout.FilePreviewUpdate{GridSpan: &span}
	e.propagateLater(rs, codec.FilePreviewLayoutChanged{PreviewID: previewID, Update: update},
		debounce.Target{Kind: targetPreviewGridSpan, ID: previewID},
		e.previewJob("push preview grid span", previewID, codec.FilePreviewPatchFromUpdate(update)))
	return nil
}

// OpenEditor places the editor card on grid card cardID.
func (e *Engine) OpenEditor(cardID string) error {
	return e.openEditor(nil, cardID)
}

func (e *Engine) openEditor(rs *RemoteScope, cardID string) error {
	if cardID == "" {
		return ErrNoCardID
	}
	changed, err := e.mutate(rs, "editor.card", func(s *layout.Store) (bool, error) {
		return s.SetEditorGridCard(cardID), nil
	})
	if err != nil || !changed {
		return err
	}
	update := layout.EditorUpdate{GridCardID: &cardID}
	e.propagateNow(rs, codec.EditorLayoutChanged{Update: update},
		e.editorJob("push editor card", codec.EditorPatchFromUpdate(update)))
	return nil
}

// CloseEditor tears the editor card down. Pending geometry pushes for the
// editor are discarded.
func (e *Engine) CloseEditor() {
	e.closeEditor(nil)
}

func (e *Engine) closeEditor(rs *RemoteScope) error {
	changed, err := e.mutate(rs, "editor.card", func(s *layout.Store) (bool, error) {
		return s.RemoveEditor(), nil
	})
	if err != nil || !changed {
		return err
	}
	if e.outbound(rs) {
		e.pusher.cancel(debounce.Target{Kind: targetEditorGridSpan})
		e.pusher.cancel(debounce.Target{Kind: targetEditorFreeform})
	}
	none := ""
	update := layout.EditorUpdate{GridCardID: &none}
	e.propagateNow(rs, codec.EditorLayoutChanged{Update: update},
		e.editorJob("push editor removal", codec.EditorPatchFromUpdate(update)))
	return nil
}

// SetEditorGridSpan resizes the editor card in grid mode. The push is
// debounced.
func (e *Engine) SetEditorGridSpan(span layout.GridSpan) error {
	return e.setEditorGridSpan(nil, span)
}

func (e *Engine) setEditorGridSpan(rs *RemoteScope, span layout.GridSpan) error {
	changed, err := e.mutate(rs, "editor.grid_span", func(s *layout.Store) (bool, error) {
		return s.SetEditorGridSpan(span)
	})
	if err != nil || !changed {
		return err
	}
	update := layout.EditorUpdate{GridSpan: &span}
	e.propagateLater(rs, codec.EditorLayoutChanged{Update: update},
		debounce.Target{Kind: targetEditorGridSpan},
		e.editorJob("push editor grid span", codec.EditorPatchFromUpdate(update)))
	return nil
}

// SetEditorFreeformPosition moves the editor card in freeform mode. The
// push is debounced.
func (e *Engine) SetEditorFreeformPosition(pos layout.Position) error {
	return e.setEditorFreeformPosition(nil, pos)
}

func (e *Engine) setEditorFreeformPosition(rs *RemoteScope, pos layout.Position) error {
	changed, err := e.mutate(rs, "editor.freeform_position", func(s *layout.Store) (bool, error) {
		return s.SetEditorFreeformPosition(pos)
	})
	if err != nil || !changed {
		return err
	}
	update := layout.EditorUpdate{FreeformPosition: &pos}
	e.propagateLater(rs, codec.EditorLayoutChanged{Update: update},
		debounce.Target{Kind: targetEditorFreeform},
		e.editorJob("push editor position", codec.EditorPatchFromUpdate(update)))
	return nil
}

// TrackAgent tells the engine agentID exists in the UI. Geometry received
// for it before that point becomes visible and promoted is true.
func (e *Engine) TrackAgent(agentID string) (promoted bool) {
	return e.store.TrackAgent(agentID)
}

// UntrackAgent forgets agentID locally. Nothing is sent to peers or the
// backend.
func (e *Engine) UntrackAgent(agentID string) {
	e.store.UntrackAgent(agentID)
}

// TrackFilePreview tells the engine previewID exists in the UI.
func (e *Engine) TrackFilePreview(previewID string) (promoted bool) {
	return e.store.TrackFilePreview(previewID)
}

// UntrackFilePreview forgets previewID locally.
func (e *Engine) UntrackFilePreview(previewID string) {
	e.store.UntrackFilePreview(previewID)
}

// journal records local mutations made while a resync fetch is in flight.
// Only the latest mutation per key is kept; replay follows first-write order.
type journal struct {
	order []string
	ops   map[string]storeOp
}

func newJournal() *journal {
	return &journal{ops: make(map[string]storeOp)}
}

func (j *journal) record(key string, op storeOp) {
	if _, ok := j.ops[key]; !ok {
		j.order = append(j.order, key)
	}
	j.ops[key] = op
}

// replay re-applies every recorded mutation and returns how many there were.
func (j *journal) replay(s *layout.Store) int {
	for _, key := range j.order {
		j.ops[key](s)
	}
	return len(j.order)
}
