package wire

import (
	"encoding/json"
	"testing"
)

func TestFieldOmitsAbsentKeys(t *testing.T) {
	data, err := json.Marshal(AgentPatch{GridSpan: Some(GridSpan{ColSpan: 2, RowSpan: 1})})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"grid_span":{"col_span":2,"row_span":1}}`
	if string(data) != want {
		t.Fatalf("Marshal = %s, want %s", data, want)
	}
}

func TestFieldEncodesExplicitNull(t *testing.T) {
	data, err := json.Marshal(EditorPatch{GridCardID: Null[string]()})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"editor_grid_card_id":null}` {
		t.Fatalf("Marshal = %s", data)
	}
}

func TestFieldDistinguishesAbsentNullAndValue(t *testing.T) {
	var p EditorPatch
	body := `{"editor_grid_card_id": null, "editor_grid_span": {"col_span": 3, "row_span": 2}}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !p.GridCardID.Set || !p.GridCardID.Null {
		t.Errorf("GridCardID = %+v, want set null", p.GridCardID)
	}
	if span, ok := p.GridSpan.Get(); !ok || span.ColSpan != 3 {
		t.Errorf("GridSpan = %+v, want col_span 3", p.GridSpan)
	}
	if p.FreeformPosition.Set {
		t.Errorf("FreeformPosition should be absent")
	}
	if p.FreeformPosition.Ptr() != nil || p.GridCardID.Ptr() != nil {
		t.Errorf("Ptr should be nil for absent and null fields")
	}
}

func TestEmbeddedPatchFlattensIntoPayload(t *testing.T) {
	payload := FilePreviewLayoutPayload{
		PreviewID:        "p1",
		FilePreviewPatch: FilePreviewPatch{Docked: Some(true)},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"preview_id":"p1","docked":true}` {
		t.Fatalf("Marshal = %s", data)
	}

	var back FilePreviewLayoutPayload
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if docked, ok := back.Docked.Get(); !ok || !docked || back.PreviewID != "p1" {
		t.Fatalf("decoded = %+v", back)
	}
	if back.Pinned.Set || back.Path.Set || back.GridSpan.Set {
		t.Fatalf("absent fields decoded as set: %+v", back)
	}
}

func TestNewMessageWithoutPayload(t *testing.T) {
	msg, err := NewMessage("s1", "u1", "d1", MessageTypeFullSync, nil)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	data, _ := json.Marshal(msg)
	want := `{"session_id":"s1","user_id":"u1","device_id":"d1","type":"full_sync"}`
	if string(data) != want {
		t.Fatalf("Marshal = %s, want %s", data, want)
	}
}

func TestPatchIsEmpty(t *testing.T) {
	if !(LayoutPatch{}).IsEmpty() || !(AgentPatch{}).IsEmpty() || !(FilePreviewPatch{}).IsEmpty() || !(EditorPatch{}).IsEmpty() {
		t.Fatal("zero patches should be empty")
	}
	if (LayoutPatch{ActiveAgentID: Null[string]()}).IsEmpty() {
		t.Fatal("null field is a change")
	}
}

func TestMessageTypeValid(t *testing.T) {
	for _, mt := range []MessageType{MessageTypeViewMode, MessageTypeActiveAgent, MessageTypeAgentLayout,
		MessageTypeFilePreviewLayout, MessageTypeEditorLayout, MessageTypeFullSync} {
		if !mt.Valid() {
			t.Errorf("%q should be valid", mt)
		}
	}
	if MessageType("cursor").Valid() {
		t.Error("unknown type reported valid")
	}
}
