package codec

import (
	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// AgentPatchFromUpdate converts a partial agent layout into a PATCH body.
func AgentPatchFromUpdate(u layout.AgentUpdate) wire.AgentPatch {
	return wire.AgentPatch{
		GridSpan: wire.FromPtr(GridSpanToWire(u.GridSpan)),
		Position: wire.FromPtr(PositionToWire(u.Position)),
	}
}

// AgentUpdateFromPatch converts a PATCH body into a partial agent layout.
// Null fields carry no geometry and are treated as unchanged.
func AgentUpdateFromPatch(p wire.AgentPatch) layout.AgentUpdate {
	return layout.AgentUpdate{
		GridSpan: GridSpanFromWire(p.GridSpan.Ptr()),
		Position: PositionFromWire(p.Position.Ptr()),
	}
}

// AgentPatchFromLayout builds a patch carrying every geometry the agent has.
func AgentPatchFromLayout(a layout.AgentLayout) wire.AgentPatch {
	return AgentPatchFromUpdate(layout.AgentUpdate{GridSpan: a.GridSpan, Position: a.Position})
}

// FilePreviewPatchFromUpdate converts a partial preview layout into a PATCH body.
func FilePreviewPatchFromUpdate(u layout.FilePreviewUpdate) wire.FilePreviewPatch {
	return wire.FilePreviewPatch{
		GridSpan: wire.FromPtr(GridSpanToWire(u.GridSpan)),
		Docked:   wire.FromPtr(u.Docked),
		Pinned:   wire.FromPtr(u.Pinned),
		Path:     wire.FromPtr(u.Path),
	}
}

// FilePreviewUpdateFromPatch converts a PATCH body into a partial preview layout.
func FilePreviewUpdateFromPatch(p wire.FilePreviewPatch) layout.FilePreviewUpdate {
	return layout.FilePreviewUpdate{
		GridSpan: GridSpanFromWire(p.GridSpan.Ptr()),
		Docked:   p.Docked.Ptr(),
		Pinned:   p.Pinned.Ptr(),
		Path:     p.Path.Ptr(),
	}
}

// FilePreviewPatchFromLayout builds a patch carrying the full preview state.
func FilePreviewPatchFromLayout(p layout.FilePreviewLayout) wire.FilePreviewPatch {
	return wire.FilePreviewPatch{
		GridSpan: wire.FromPtr(GridSpanToWire(p.GridSpan)),
		Docked:   wire.Some(p.Docked),
		Pinned:   wire.Some(p.Pinned),
		Path:     wire.Some(p.Path),
	}
}

// EditorPatchFromUpdate converts a partial editor layout into a PATCH body.
// A GridCardID pointing at "" becomes an explicit null (card removed).
func EditorPatchFromUpdate(u layout.EditorUpdate) wire.EditorPatch {
	p := wire.EditorPatch{
		GridSpan:         wire.FromPtr(GridSpanToWire(u.GridSpan)),
		FreeformPosition: wire.FromPtr(PositionToWire(u.FreeformPosition)),
	}
	if u.GridCardID != nil {
		if *u.GridCardID == "" {
			p.GridCardID = wire.Null[string]()
		} else {
			p.GridCardID = wire.Some(*u.GridCardID)
		}
	}
	return p
}

// EditorUpdateFromPatch converts a PATCH body into a partial editor layout.
func EditorUpdateFromPatch(p wire.EditorPatch) layout.EditorUpdate {
	u := layout.EditorUpdate{
		GridSpan:         GridSpanFromWire(p.GridSpan.Ptr()),
		FreeformPosition: PositionFromWire(p.FreeformPosition.Ptr()),
	}
	if p.GridCardID.Set {
		card := ""
		if !p.GridCardID.Null {
			card = p.GridCardID.Value
		}
		u.GridCardID = &card
	}
	return u
}

// EditorPatchFromLayout builds a patch carrying the full editor card, or a
// removal when no card exists.
func EditorPatchFromLayout(e layout.EditorLayout) wire.EditorPatch {
	card := e.GridCardID
	if !e.Exists() {
		return EditorPatchFromUpdate(layout.EditorUpdate{GridCardID: &card})
	}
	return EditorPatchFromUpdate(layout.EditorUpdate{
		GridCardID:       &card,
		GridSpan:         e.GridSpan,
		FreeformPosition: e.FreeformPosition,
	})
}

// LayoutPatchFromFields builds the top-level PATCH body from l, including
// only the requested fields. An empty active agent becomes null.
func LayoutPatchFromFields(l layout.SessionLayout, viewMode, activeAgent bool) wire.LayoutPatch {
	var p wire.LayoutPatch
	if viewMode {
		p.ViewMode = wire.Some(string(l.ViewMode))
	}
	if activeAgent {
		if l.ActiveAgentID == "" {
			p.ActiveAgentID = wire.Null[string]()
		} else {
			p.ActiveAgentID = wire.Some(l.ActiveAgentID)
		}
	}
	return p
}
