// Package wire defines the JSON schema spoken between devices and the
// layout backend: the flat snake_case layout document served over REST, the
// partial PATCH bodies, and the realtime channel envelope.
//
// Types here carry no behaviour beyond JSON encoding; translation to the
// in-memory model lives in package codec.
package wire

// GridSpan is the wire form of a grid placement.
type GridSpan struct {
	ColSpan int `json:"col_span"`
	RowSpan int `json:"row_span"`
}

// Position is the wire form of a freeform placement.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	ZIndex int     `json:"z_index"`
}

// AgentLayout is the wire form of an agent panel's geometry.
type AgentLayout struct {
	GridSpan *GridSpan `json:"grid_span"`
	Position *Position `json:"position"`
}

// FilePreviewLayout is the wire form of a file preview panel.
type FilePreviewLayout struct {
	GridSpan *GridSpan `json:"grid_span"`
	Docked   bool      `json:"docked"`
	Pinned   bool      `json:"pinned"`
	Path     string    `json:"path"`
}

// Layout is the full layout document returned by GET /sessions/{id}/layout.
// Editor fields are flattened into the top level.
type Layout struct {
	SessionID              string                       `json:"session_id,omitempty"`
	ViewMode               string                       `json:"view_mode"`
	ActiveAgentID          *string                      `json:"active_agent_id"`
	AgentLayouts           map[string]AgentLayout       `json:"agent_layouts"`
	FilePreviewLayouts     map[string]FilePreviewLayout `json:"file_preview_layouts"`
	EditorGridCardID       *string                      `json:"editor_grid_card_id"`
	EditorGridSpan         *GridSpan                    `json:"editor_grid_span"`
	EditorFreeformPosition *Position                    `json:"editor_freeform_position"`
}

// LayoutPatch is the body of PATCH /sessions/{id}/layout.
type LayoutPatch struct {
	ViewMode      Field[string] `json:"view_mode,omitzero"`
	ActiveAgentID Field[string] `json:"active_agent_id,omitzero"`
}

// IsEmpty reports whether the patch changes nothing.
func (p LayoutPatch) IsEmpty() bool {
	return !p.ViewMode.Set && !p.ActiveAgentID.Set
}

// LayoutFields is the response of PATCH /sessions/{id}/layout.
type LayoutFields struct {
	ViewMode      string  `json:"view_mode"`
	ActiveAgentID *string `json:"active_agent_id"`
}

// AgentPatch is the body of PATCH /sessions/{id}/layout/agents/{agentId}.
type AgentPatch struct {
	GridSpan Field[GridSpan] `json:"grid_span,omitzero"`
	Position Field[Position] `json:"position,omitzero"`
}

// IsEmpty reports whether the patch changes nothing.
func (p AgentPatch) IsEmpty() bool {
	return !p.GridSpan.Set && !p.Position.Set
}

// FilePreviewPatch is the body of PATCH /sessions/{id}/layout/previews/{previewId}.
type FilePreviewPatch struct {
	GridSpan Field[GridSpan] `json:"grid_span,omitzero"`
	Docked   Field[bool]     `json:"docked,omitzero"`
	Pinned   Field[bool]     `json:"pinned,omitzero"`
	Path     Field[string]   `json:"path,omitzero"`
}

// IsEmpty reports whether the patch changes nothing.
func (p FilePreviewPatch) IsEmpty() bool {
	return !p.GridSpan.Set && !p.Docked.Set && !p.Pinned.Set && !p.Path.Set
}

// EditorPatch is the body of PATCH /sessions/{id}/layout/editor. A null
// editor_grid_card_id removes the editor card.
type EditorPatch struct {
	GridCardID       Field[string]   `json:"editor_grid_card_id,omitzero"`
	GridSpan         Field[GridSpan] `json:"editor_grid_span,omitzero"`
	FreeformPosition Field[Position] `json:"editor_freeform_position,omitzero"`
}

// IsEmpty reports whether the patch changes nothing.
func (p EditorPatch) IsEmpty() bool {
	return !p.GridCardID.Set && !p.GridSpan.Set && !p.FreeformPosition.Set
}

// EditorFields is the response of PATCH /sessions/{id}/layout/editor.
type EditorFields struct {
	GridCardID       *string   `json:"editor_grid_card_id"`
	GridSpan         *GridSpan `json:"editor_grid_span"`
	FreeformPosition *Position `json:"editor_freeform_position"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
