// Package layout holds the in-memory representation of one session's UI
// arrangement and the Store that owns it.
//
// A SessionLayout describes how a device arranges the panels of a
// collaborative session: the active view mode, which agent has focus, and
// the geometry of every positioned entity (agents, file previews, and at most
// one editor card). Geometry is retained for both grid and freeform modes so
// that switching modes never loses the other mode's last-known placement.
package layout

import "fmt"

// ViewMode selects which geometry the UI renders.
type ViewMode string

const (
	// ViewModeGrid arranges panels on a grid using GridSpan.
	ViewModeGrid ViewMode = "grid"

	// ViewModeFocus shows the active agent enlarged.
	ViewModeFocus ViewMode = "focus"

	// ViewModeFreeform places panels at absolute Positions.
	ViewModeFreeform ViewMode = "freeform"
)

// DefaultViewMode is used for a session the server has no record of.
const DefaultViewMode = ViewModeGrid

// Valid reports whether m is one of the known view modes.
func (m ViewMode) Valid() bool {
	switch m {
	case ViewModeGrid, ViewModeFocus, ViewModeFreeform:
		return true
	}
	return false
}

// ParseViewMode converts a string into a ViewMode.
func ParseViewMode(s string) (ViewMode, error) {
	m := ViewMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidViewMode, s)
	}
	return m, nil
}

// GridSpan is the number of grid cells a panel occupies in grid mode.
type GridSpan struct {
	ColSpan int
	RowSpan int
}

// Position is a panel's freeform geometry.
type Position struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
	ZIndex int
}

// AgentLayout is the geometry of one agent panel. Either field may be nil.
type AgentLayout struct {
	GridSpan *GridSpan
	Position *Position
}

// FilePreviewLayout is the geometry and state of one file preview panel.
// Identity is the preview id, not Path.
type FilePreviewLayout struct {
	GridSpan *GridSpan
	Docked   bool
	Pinned   bool
	Path     string
}

// EditorLayout is the session's editor card. A non-empty GridCardID is the
// only indicator that an editor card exists; GridSpan and FreeformPosition
// are meaningless without it.
type EditorLayout struct {
	GridCardID       string
	GridSpan         *GridSpan
	FreeformPosition *Position
}

// Exists reports whether an editor card is present.
func (e EditorLayout) Exists() bool {
	return e.GridCardID != ""
}

// SessionLayout is the complete layout of one session.
type SessionLayout struct {
	ViewMode           ViewMode
	ActiveAgentID      string
	AgentLayouts       map[string]AgentLayout
	FilePreviewLayouts map[string]FilePreviewLayout
	Editor             EditorLayout
}

// NewSessionLayout returns an empty layout in the default view mode.
func NewSessionLayout() SessionLayout {
	return SessionLayout{
		ViewMode:           DefaultViewMode,
		AgentLayouts:       make(map[string]AgentLayout),
		FilePreviewLayouts: make(map[string]FilePreviewLayout),
	}
}

// Clone returns a deep copy of l.
func (l SessionLayout) Clone() SessionLayout {
	out := SessionLayout{
		ViewMode:           l.ViewMode,
		ActiveAgentID:      l.ActiveAgentID,
		AgentLayouts:       make(map[string]AgentLayout, len(l.AgentLayouts)),
		FilePreviewLayouts: make(map[string]FilePreviewLayout, len(l.FilePreviewLayouts)),
		Editor:             l.Editor.Clone(),
	}
	for id, a := range l.AgentLayouts {
		out.AgentLayouts[id] = a.Clone()
	}
	for id, p := range l.FilePreviewLayouts {
		out.FilePreviewLayouts[id] = p.Clone()
	}
	return out
}

// Clone returns a deep copy of a.
func (a AgentLayout) Clone() AgentLayout {
	return AgentLayout{GridSpan: cloneSpan(a.GridSpan), Position: clonePosition(a.Position)}
}

// Equal reports whether a and b describe the same geometry.
func (a AgentLayout) Equal(b AgentLayout) bool {
	return spanEqual(a.GridSpan, b.GridSpan) && positionEqual(a.Position, b.Position)
}

// Clone returns a deep copy of p.
func (p FilePreviewLayout) Clone() FilePreviewLayout {
	p.GridSpan = cloneSpan(p.GridSpan)
	return p
}

// Equal reports whether p and q describe the same preview state.
func (p FilePreviewLayout) Equal(q FilePreviewLayout) bool {
	return spanEqual(p.GridSpan, q.GridSpan) && p.Docked == q.Docked && p.Pinned == q.Pinned && p.Path == q.Path
}

// Clone returns a deep copy of e.
func (e EditorLayout) Clone() EditorLayout {
	return EditorLayout{
		GridCardID:       e.GridCardID,
		GridSpan:         cloneSpan(e.GridSpan),
		FreeformPosition: clonePosition(e.FreeformPosition),
	}
}

// Equal reports whether e and f describe the same editor card.
func (e EditorLayout) Equal(f EditorLayout) bool {
	return e.GridCardID == f.GridCardID &&
		spanEqual(e.GridSpan, f.GridSpan) &&
		positionEqual(e.FreeformPosition, f.FreeformPosition)
}

func cloneSpan(s *GridSpan) *GridSpan {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func clonePosition(p *Position) *Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func spanEqual(a, b *GridSpan) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func positionEqual(a, b *Position) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
