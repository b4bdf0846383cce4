package syncengine

import (
	"errors"

	"github.com/pseudocoder/layoutsync/internal/guard"
	"github.com/pseudocoder/layoutsync/internal/layout"
)

// ErrScopeClosed is returned by RemoteScope setters called after the
// callback that received the scope has returned.
var ErrScopeClosed = errors.New("syncengine: remote scope is no longer valid")

// RemoteScope is passed to Listener callbacks for the duration of one
// remote application. Its setters mirror the Engine's but only update the
// store: they are how a UI state store writes a remote change back into the
// layout without sending it out again.
//
// The Engine's own setters always count as local changes, whichever
// goroutine calls them while an application is in progress.
type RemoteScope struct {
	e     *Engine
	scope *guard.Scope
}

func (e *Engine) newRemoteScope(s *guard.Scope) *RemoteScope {
	return &RemoteScope{e: e, scope: s}
}

// Valid reports whether the scope can still be used.
func (r *RemoteScope) Valid() bool {
	return r.scope.Held()
}

func (r *RemoteScope) SetViewMode(m layout.ViewMode) error {
	return r.e.setViewMode(r, m)
}

func (r *RemoteScope) SetActiveAgent(agentID string) error {
	return r.e.setActiveAgent(r, agentID)
}

func (r *RemoteScope) SetAgentGridSpan(agentID string, span layout.GridSpan) error {
	return r.e.setAgentGridSpan(r, agentID, span)
}

func (r *RemoteScope) SetAgentPosition(agentID string, pos layout.Position) error {
	return r.e.setAgentPosition(r, agentID, pos)
}

func (r *RemoteScope) OpenFilePreview(previewID, path string) error {
	return r.e.openFilePreview(r, previewID, path)
}

func (r *RemoteScope) SetFilePreviewDocked(previewID string, docked bool) error {
	return r.e.setFilePreviewDocked(r, previewID, docked)
}

func (r *RemoteScope) SetFilePreviewPinned(previewID string, pinned bool) error {
	return r.e.setFilePreviewPinned(r, previewID, pinned)
}

func (r *RemoteScope) SetFilePreviewGridSpan(previewID string, span layout.GridSpan) error {
	return r.e.setFilePreviewGridSpan(r, previewID, span)
}

func (r *RemoteScope) OpenEditor(cardID string) error {
	return r.e.openEditor(r, cardID)
}

func (r *RemoteScope) CloseEditor() error {
	return r.e.closeEditor(r)
}

func (r *RemoteScope) SetEditorGridSpan(span layout.GridSpan) error {
	return r.e.setEditorGridSpan(r, span)
}

func (r *RemoteScope) SetEditorFreeformPosition(pos layout.Position) error {
	return r.e.setEditorFreeformPosition(r, pos)
}
