// Package codec translates layout entities between the in-memory model
// (package layout) and the wire schema (package wire).
//
// Every function is pure and total: no I/O, no partial field drops. Unknown
// wire fields never reach this package because encoding/json ignores them.
package codec

import (
	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// GridSpanToWire converts a grid span. Nil stays nil.
func GridSpanToWire(s *layout.GridSpan) *wire.GridSpan {
	if s == nil {
		return nil
	}
	return &wire.GridSpan{ColSpan: s.ColSpan, RowSpan: s.RowSpan}
}

// GridSpanFromWire converts a grid span. Nil stays nil.
func GridSpanFromWire(s *wire.GridSpan) *layout.GridSpan {
	if s == nil {
		return nil
	}
	return &layout.GridSpan{ColSpan: s.ColSpan, RowSpan: s.RowSpan}
}

// PositionToWire converts a freeform position. Nil stays nil.
func PositionToWire(p *layout.Position) *wire.Position {
	if p == nil {
		return nil
	}
	return &wire.Position{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height, ZIndex: p.ZIndex}
}

// PositionFromWire converts a freeform position. Nil stays nil.
func PositionFromWire(p *wire.Position) *layout.Position {
	if p == nil {
		return nil
	}
	return &layout.Position{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height, ZIndex: p.ZIndex}
}

// AgentLayoutToWire converts an agent layout.
func AgentLayoutToWire(a layout.AgentLayout) wire.AgentLayout {
	return wire.AgentLayout{GridSpan: GridSpanToWire(a.GridSpan), Position: PositionToWire(a.Position)}
}

// AgentLayoutFromWire converts an agent layout.
func AgentLayoutFromWire(a wire.AgentLayout) layout.AgentLayout {
	return layout.AgentLayout{GridSpan: GridSpanFromWire(a.GridSpan), Position: PositionFromWire(a.Position)}
}

// FilePreviewLayoutToWire converts a file preview layout.
func FilePreviewLayoutToWire(p layout.FilePreviewLayout) wire.FilePreviewLayout {
	return wire.FilePreviewLayout{
		GridSpan: GridSpanToWire(p.GridSpan),
		Docked:   p.Docked,
		Pinned:   p.Pinned,
		Path:     p.Path,
	}
}

// FilePreviewLayoutFromWire converts a file preview layout.
func FilePreviewLayoutFromWire(p wire.FilePreviewLayout) layout.FilePreviewLayout {
	return layout.FilePreviewLayout{
		GridSpan: GridSpanFromWire(p.GridSpan),
		Docked:   p.Docked,
		Pinned:   p.Pinned,
		Path:     p.Path,
	}
}

// EditorToWire converts the editor card into its flattened wire fields.
func EditorToWire(e layout.EditorLayout) wire.EditorFields {
	if !e.Exists() {
		return wire.EditorFields{}
	}
	card := e.GridCardID
	return wire.EditorFields{
		GridCardID:       &card,
		GridSpan:         GridSpanToWire(e.GridSpan),
		FreeformPosition: PositionToWire(e.FreeformPosition),
	}
}

// EditorFromWire converts flattened wire fields into an editor card. Geometry
// without a card id is dropped because it has no meaning.
func EditorFromWire(f wire.EditorFields) layout.EditorLayout {
	if f.GridCardID == nil || *f.GridCardID == "" {
		return layout.EditorLayout{}
	}
	return layout.EditorLayout{
		GridCardID:       *f.GridCardID,
		GridSpan:         GridSpanFromWire(f.GridSpan),
		FreeformPosition: PositionFromWire(f.FreeformPosition),
	}
}

// LayoutToWire converts a full session layout into the wire document.
func LayoutToWire(sessionID string, l layout.SessionLayout) wire.Layout {
	out := wire.Layout{
		SessionID:          sessionID,
		ViewMode:           string(l.ViewMode),
		ActiveAgentID:      optionalString(l.ActiveAgentID),
		AgentLayouts:       make(map[string]wire.AgentLayout, len(l.AgentLayouts)),
		FilePreviewLayouts: make(map[string]wire.FilePreviewLayout, len(l.FilePreviewLayouts)),
	}
	for id, a := range l.AgentLayouts {
		out.AgentLayouts[id] = AgentLayoutToWire(a)
	}
	for id, p := range l.FilePreviewLayouts {
		out.FilePreviewLayouts[id] = FilePreviewLayoutToWire(p)
	}
	ed := EditorToWire(l.Editor)
	out.EditorGridCardID = ed.GridCardID
	out.EditorGridSpan = ed.GridSpan
	out.EditorFreeformPosition = ed.FreeformPosition
	return out
}

// LayoutFromWire converts a wire document into a full session layout. The
// view mode is passed through as-is; the store validates it.
func LayoutFromWire(w wire.Layout) layout.SessionLayout {
	l := layout.NewSessionLayout()
	if w.ViewMode != "" {
		l.ViewMode = layout.ViewMode(w.ViewMode)
	}
	if w.ActiveAgentID != nil {
		l.ActiveAgentID = *w.ActiveAgentID
	}
	for id, a := range w.AgentLayouts {
		l.AgentLayouts[id] = AgentLayoutFromWire(a)
	}
	for id, p := range w.FilePreviewLayouts {
		l.FilePreviewLayouts[id] = FilePreviewLayoutFromWire(p)
	}
	l.Editor = EditorFromWire(wire.EditorFields{
		GridCardID:       w.EditorGridCardID,
		GridSpan:         w.EditorGridSpan,
		FreeformPosition: w.EditorFreeformPosition,
	})
	return l
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
