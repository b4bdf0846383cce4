package codec

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// Event is a decoded realtime change. The concrete types below form a closed
// set, one per wire.MessageType.
type Event interface {
	MessageType() wire.MessageType
}

// ViewModeChanged is the decoded form of a view_mode message.
type ViewModeChanged struct {
	ViewMode layout.ViewMode
}

// ActiveAgentChanged is the decoded form of an active_agent message.
// An empty AgentID clears focus.
type ActiveAgentChanged struct {
	AgentID string
}

// AgentLayoutChanged is the decoded form of an agent_layout message.
type AgentLayoutChanged struct {
	AgentID string
	Update  layout.AgentUpdate
}

// FilePreviewLayoutChanged is the decoded form of a file_preview_layout message.
type FilePreviewLayoutChanged struct {
	PreviewID string
	Update    layout.FilePreviewUpdate
}

// EditorLayoutChanged is the decoded form of an editor_layout message.
type EditorLayoutChanged struct {
	Update layout.EditorUpdate
}

// FullSyncRequested is the decoded form of a full_sync message.
type FullSyncRequested struct{}

func (ViewModeChanged) MessageType() wire.MessageType          { return wire.MessageTypeViewMode }
func (ActiveAgentChanged) MessageType() wire.MessageType       { return wire.MessageTypeActiveAgent }
func (AgentLayoutChanged) MessageType() wire.MessageType       { return wire.MessageTypeAgentLayout }
func (FilePreviewLayoutChanged) MessageType() wire.MessageType { return wire.MessageTypeFilePreviewLayout }
func (EditorLayoutChanged) MessageType() wire.MessageType      { return wire.MessageTypeEditorLayout }
func (FullSyncRequested) MessageType() wire.MessageType        { return wire.MessageTypeFullSync }

// EncodeEvent wraps ev in a message envelope addressed to sessionID.
func EncodeEvent(sessionID, userID, deviceID string, ev Event) (wire.Message, error) {
	var payload any
	switch e := ev.(type) {
	case ViewModeChanged:
		payload = wire.ViewModePayload{ViewMode: string(e.ViewMode)}
	case ActiveAgentChanged:
		payload = wire.ActiveAgentPayload{ActiveAgentID: optionalString(e.AgentID)}
	case AgentLayoutChanged:
		payload = wire.AgentLayoutPayload{AgentID: e.AgentID, AgentPatch: AgentPatchFromUpdate(e.Update)}
	case FilePreviewLayoutChanged:
		payload = wire.FilePreviewLayoutPayload{PreviewID: e.PreviewID, FilePreviewPatch: FilePreviewPatchFromUpdate(e.Update)}
	case EditorLayoutChanged:
		payload = wire.EditorLayoutPayload{EditorPatch: EditorPatchFromUpdate(e.Update)}
	case FullSyncRequested:
		payload = nil
	default:
		return wire.Message{}, fmt.Errorf("encode event: unsupported type %T", ev)
	}
	return wire.NewMessage(sessionID, userID, deviceID, ev.MessageType(), payload)
}

// DecodeEvent decodes the payload of msg. Any failure yields a
// codec.decode_failed error and no event, so a malformed message is never
// partially applied.
func DecodeEvent(msg wire.Message) (Event, error) {
	switch msg.Type {
	case wire.MessageTypeViewMode:
		var p wire.ViewModePayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		mode, err := layout.ParseViewMode(p.ViewMode)
		if err != nil {
			return nil, apperrors.DecodeFailed("view_mode payload", err)
		}
		return ViewModeChanged{ViewMode: mode}, nil

	case wire.MessageTypeActiveAgent:
		var p wire.ActiveAgentPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		ev := ActiveAgentChanged{}
		if p.ActiveAgentID != nil {
			ev.AgentID = *p.ActiveAgentID
		}
		return ev, nil

	case wire.MessageTypeAgentLayout:
		var p wire.AgentLayoutPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		if p.AgentID == "" {
			return nil, apperrors.DecodeFailed("agent_layout payload", fmt.Errorf("missing agent_id"))
		}
		return AgentLayoutChanged{AgentID: p.AgentID, Update: AgentUpdateFromPatch(p.AgentPatch)}, nil

	case wire.MessageTypeFilePreviewLayout:
		var p wire.FilePreviewLayoutPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		if p.PreviewID == "" {
			return nil, apperrors.DecodeFailed("file_preview_layout payload", fmt.Errorf("missing preview_id"))
		}
		return FilePreviewLayoutChanged{PreviewID: p.PreviewID, Update: FilePreviewUpdateFromPatch(p.FilePreviewPatch)}, nil

	case wire.MessageTypeEditorLayout:
		var p wire.EditorLayoutPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		return EditorLayoutChanged{Update: EditorUpdateFromPatch(p.EditorPatch)}, nil

	case wire.MessageTypeFullSync:
		return FullSyncRequested{}, nil

	default:
		return nil, apperrors.DecodeFailed("message", fmt.Errorf("unknown type %q", msg.Type))
	}
}

func decodePayload(msg wire.Message, v any) error {
	if len(msg.Payload) == 0 {
		return apperrors.DecodeFailed(string(msg.Type)+" payload", fmt.Errorf("missing payload"))
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return apperrors.DecodeFailed(string(msg.Type)+" payload", err)
	}
	return nil
}
