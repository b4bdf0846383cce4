package wire

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the kind of change carried by a realtime message.
// Each type has a specific payload structure defined below.
type MessageType string

const (
	// MessageTypeViewMode announces a view mode change.
	// Payload: ViewModePayload
	MessageTypeViewMode MessageType = "view_mode"

	// MessageTypeActiveAgent announces a focus change.
	// Payload: ActiveAgentPayload
	MessageTypeActiveAgent MessageType = "active_agent"

	// MessageTypeAgentLayout announces a partial agent geometry change.
	// Payload: AgentLayoutPayload
	MessageTypeAgentLayout MessageType = "agent_layout"

	// MessageTypeFilePreviewLayout announces a partial file preview change.
	// Payload: FilePreviewLayoutPayload
	MessageTypeFilePreviewLayout MessageType = "file_preview_layout"

	// MessageTypeEditorLayout announces a partial editor card change.
	// Payload: EditorLayoutPayload
	MessageTypeEditorLayout MessageType = "editor_layout"

	// MessageTypeFullSync asks every receiver to re-fetch the full layout
	// instead of trusting incremental payloads.
	// Payload: none
	MessageTypeFullSync MessageType = "full_sync"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeViewMode, MessageTypeActiveAgent, MessageTypeAgentLayout,
		MessageTypeFilePreviewLayout, MessageTypeEditorLayout, MessageTypeFullSync:
		return true
	}
	return false
}

// Message is the envelope for every frame on a session topic.
type Message struct {
	// SessionID scopes the message to one collaborative session.
	SessionID string `json:"session_id"`

	// UserID identifies the user whose device originated the change.
	UserID string `json:"user_id"`

	// DeviceID identifies the originating device (browser tab). Receivers
	// drop messages carrying their own device id.
	DeviceID string `json:"device_id"`

	// Type identifies the payload structure.
	Type MessageType `json:"type"`

	// Payload contains the type-specific data. Empty for full_sync.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds a message, encoding payload as JSON. A nil payload
// produces a message without one.
func NewMessage(sessionID, userID, deviceID string, t MessageType, payload any) (Message, error) {
	msg := Message{
		SessionID: sessionID,
		UserID:    userID,
		DeviceID:  deviceID,
		Type:      t,
	}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	msg.Payload = data
	return msg, nil
}

// ViewModePayload carries a new view mode.
type ViewModePayload struct {
	ViewMode string `json:"view_mode"`
}

// ActiveAgentPayload carries the newly focused agent. Null clears focus.
type ActiveAgentPayload struct {
	ActiveAgentID *string `json:"active_agent_id"`
}

// AgentLayoutPayload carries the changed fields of one agent.
type AgentLayoutPayload struct {
	AgentID string `json:"agent_id"`
	AgentPatch
}

// FilePreviewLayoutPayload carries the changed fields of one file preview.
type FilePreviewLayoutPayload struct {
	PreviewID string `json:"preview_id"`
	FilePreviewPatch
}

// EditorLayoutPayload carries the changed fields of the editor card.
type EditorLayoutPayload struct {
	EditorPatch
}
