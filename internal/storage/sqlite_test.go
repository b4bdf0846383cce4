package storage

import (
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestNewSQLiteStore verifies that a fresh database is migrated to the
// current schema.
func TestNewSQLiteStore(t *testing.T) {
	store := newTestStore(t)

	version, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}

	for _, table := range []string{"session_layouts", "agent_layouts", "file_preview_layouts", "session_devices", "request_latency"} {
		ok, err := store.tableExists(table)
		if err != nil {
			t.Fatalf("tableExists(%s) failed: %v", table, err)
		}
		if !ok {
			t.Errorf("table %s missing", table)
		}
	}
}

// TestReopenKeepsData verifies that layouts survive a reopen and that
// migrations are not applied twice.
func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layouts.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if _, err := store.PatchLayout("s1", wire.LayoutPatch{ViewMode: wire.Some("freeform")}); err != nil {
		t.Fatalf("PatchLayout failed: %v", err)
	}
	store.Close()

	store, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	got, err := store.GetLayout("s1")
	if err != nil {
		t.Fatalf("GetLayout failed: %v", err)
	}
	if got.ViewMode != "freeform" {
		t.Errorf("ViewMode = %q, want freeform", got.ViewMode)
	}
}

// TestGetLayoutUnknownSession verifies the default layout for a session
// the store has never seen.
func TestGetLayoutUnknownSession(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetLayout("missing")
	if err != nil {
		t.Fatalf("GetLayout failed: %v", err)
	}
	if got.SessionID != "missing" {
		t.Errorf("SessionID = %q, want missing", got.SessionID)
	}
	if got.ViewMode != "grid" {
		t.Errorf("ViewMode = %q, want grid", got.ViewMode)
	}
	if got.ActiveAgentID != nil || got.EditorGridCardID != nil {
		t.Errorf("expected no focus and no editor, got %+v", got)
	}
	if got.AgentLayouts == nil || got.FilePreviewLayouts == nil {
		t.Error("entity maps must be non-nil so they encode as {}")
	}
}

func TestPatchLayout(t *testing.T) {
	store := newTestStore(t)

	fields, err := store.PatchLayout("s1", wire.LayoutPatch{
		ViewMode:      wire.Some("focus"),
		ActiveAgentID: wire.Some("a1"),
	})
	if err != nil {
		t.Fatalf("PatchLayout failed: %v", err)
	}
	if fields.ViewMode != "focus" || fields.ActiveAgentID == nil || *fields.ActiveAgentID != "a1" {
		t.Errorf("fields = %+v, want focus/a1", fields)
	}

	// A patch carrying only the focus leaves the view mode alone.
	fields, err = store.PatchLayout("s1", wire.LayoutPatch{ActiveAgentID: wire.Null[string]()})
	if err != nil {
		t.Fatalf("PatchLayout failed: %v", err)
	}
	if fields.ViewMode != "focus" {
		t.Errorf("ViewMode = %q, want focus", fields.ViewMode)
	}
	if fields.ActiveAgentID != nil {
		t.Errorf("ActiveAgentID = %v, want nil", *fields.ActiveAgentID)
	}
}

func TestPatchLayoutValidation(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name  string
		patch wire.LayoutPatch
	}{
		{"unknown view mode", wire.LayoutPatch{ViewMode: wire.Some("tiled")}},
		{"null view mode", wire.LayoutPatch{ViewMode: wire.Null[string]()}},
		{"empty focus", wire.LayoutPatch{ActiveAgentID: wire.Some("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.PatchLayout("s1", tt.patch)
			if !apperrors.IsCode(err, apperrors.CodeValidationFailed) {
				t.Fatalf("err = %v, want %s", err, apperrors.CodeValidationFailed)
			}
		})
	}

	got, err := store.GetLayout("s1")
	if err != nil {
		t.Fatalf("GetLayout failed: %v", err)
	}
	if got.ViewMode != "grid" {
		t.Errorf("rejected patch changed view mode to %q", got.ViewMode)
	}
}

// TestPatchAgentMerges verifies that absent and null fields keep the stored
// geometry.
func TestPatchAgentMerges(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.PatchAgent("s1", "a1", wire.AgentPatch{
		GridSpan: wire.Some(wire.GridSpan{ColSpan: 2, RowSpan: 1}),
		Position: wire.Some(wire.Position{X: 10, Y: 20, Width: 300, Height: 200, ZIndex: 1}),
	}); err != nil {
		t.Fatalf("PatchAgent failed: %v", err)
	}

	got, err := store.PatchAgent("s1", "a1", wire.AgentPatch{
		GridSpan: wire.Some(wire.GridSpan{ColSpan: 3, RowSpan: 2}),
		Position: wire.Null[wire.Position](),
	})
	if err != nil {
		t.Fatalf("PatchAgent failed: %v", err)
	}
	if got.GridSpan == nil || *got.GridSpan != (wire.GridSpan{ColSpan: 3, RowSpan: 2}) {
		t.Errorf("GridSpan = %+v, want 3x2", got.GridSpan)
	}
	if got.Position == nil || got.Position.X != 10 || got.Position.ZIndex != 1 {
		t.Errorf("Position = %+v, want stored position kept", got.Position)
	}

	layout, err := store.GetLayout("s1")
	if err != nil {
		t.Fatalf("GetLayout failed: %v", err)
	}
	stored, ok := layout.AgentLayouts["a1"]
	if !ok {
		t.Fatal("agent a1 missing from layout")
	}
	if *stored.GridSpan != *got.GridSpan || *stored.Position != *got.Position {
		t.Errorf("stored = %+v, want %+v", stored, got)
	}
}

func TestPatchAgentRejectsEmptySpan(t *testing.T) {
	store := newTestStore(t)

	_, err := store.PatchAgent("s1", "a1", wire.AgentPatch{GridSpan: wire.Some(wire.GridSpan{ColSpan: 0, RowSpan: 1})})
	if !apperrors.IsCode(err, apperrors.CodeValidationFailed) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeValidationFailed)
	}
}

func TestPatchFilePreview(t *testing.T) {
	store := newTestStore(t)

	got, err := store.PatchFilePreview("s1", "p1", wire.FilePreviewPatch{
		Path:   wire.Some("main.go"),
		Docked: wire.Some(true),
	})
	if err != nil {
		t.Fatalf("PatchFilePreview failed: %v", err)
	}
	if got.Path != "main.go" || !got.Docked || got.Pinned || got.GridSpan != nil {
		t.Errorf("preview = %+v", got)
	}

	got, err = store.PatchFilePreview("s1", "p1", wire.FilePreviewPatch{Pinned: wire.Some(true)})
	if err != nil {
		t.Fatalf("PatchFilePreview failed: %v", err)
	}
	if got.Path != "main.go" || !got.Docked || !got.Pinned {
		t.Errorf("partial patch lost fields: %+v", got)
	}
}

// TestPatchFilePreviewEvictsSamePath verifies that a path is shown by one
// preview per session.
func TestPatchFilePreviewEvictsSamePath(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.PatchFilePreview("s1", "old", wire.FilePreviewPatch{Path: wire.Some("main.go")}); err != nil {
		t.Fatalf("PatchFilePreview failed: %v", err)
	}
	if _, err := store.PatchFilePreview("s2", "other", wire.FilePreviewPatch{Path: wire.Some("main.go")}); err != nil {
		t.Fatalf("PatchFilePreview failed: %v", err)
	}
	if _, err := store.PatchFilePreview("s1", "new", wire.FilePreviewPatch{Path: wire.Some("main.go")}); err != nil {
		t.Fatalf("PatchFilePreview failed: %v", err)
	}

	got, err := store.GetLayout("s1")
	if err != nil {
		t.Fatalf("GetLayout failed: %v", err)
	}
	if _, ok := got.FilePreviewLayouts["old"]; ok {
		t.Error("older preview with the same path was not evicted")
	}
	if _, ok := got.FilePreviewLayouts["new"]; !ok {
		t.Error("new preview missing")
	}

	other, err := store.GetLayout("s2")
	if err != nil {
		t.Fatalf("GetLayout failed: %v", err)
	}
	if _, ok := other.FilePreviewLayouts["other"]; !ok {
		t.Error("eviction crossed sessions")
	}
}

func TestPatchEditor(t *testing.T) {
	store := newTestStore(t)

	// Geometry without a card conflicts with stored state.
	_, err := store.PatchEditor("s1", wire.EditorPatch{GridSpan: wire.Some(wire.GridSpan{ColSpan: 2, RowSpan: 2})})
	if !apperrors.IsCode(err, apperrors.CodeConflictDetected) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeConflictDetected)
	}

	got, err := store.PatchEditor("s1", wire.EditorPatch{
		GridCardID: wire.Some("card-1"),
		GridSpan:   wire.Some(wire.GridSpan{ColSpan: 2, RowSpan: 2}),
	})
	if err != nil {
		t.Fatalf("PatchEditor failed: %v", err)
	}
	if got.GridCardID == nil || *got.GridCardID != "card-1" || got.GridSpan == nil {
		t.Errorf("editor = %+v", got)
	}

	got, err = store.PatchEditor("s1", wire.EditorPatch{
		FreeformPosition: wire.Some(wire.Position{X: 5, Y: 5, Width: 100, Height: 100}),
	})
	if err != nil {
		t.Fatalf("PatchEditor failed: %v", err)
	}
	if got.GridSpan == nil || got.FreeformPosition == nil {
		t.Errorf("partial patch lost fields: %+v", got)
	}

	// A null card removes the editor with its geometry.
	got, err = store.PatchEditor("s1", wire.EditorPatch{GridCardID: wire.Null[string]()})
	if err != nil {
		t.Fatalf("PatchEditor failed: %v", err)
	}
	if got.GridCardID != nil || got.GridSpan != nil || got.FreeformPosition != nil {
		t.Errorf("editor not removed: %+v", got)
	}

	layout, err := store.GetLayout("s1")
	if err != nil {
		t.Fatalf("GetLayout failed: %v", err)
	}
	if layout.EditorGridCardID != nil || layout.EditorGridSpan != nil || layout.EditorFreeformPosition != nil {
		t.Errorf("stored editor not removed: %+v", layout)
	}
}

func TestPatchRequiresSessionID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.PatchAgent("", "a1", wire.AgentPatch{GridSpan: wire.Some(wire.GridSpan{ColSpan: 1, RowSpan: 1})})
	if !apperrors.IsCode(err, apperrors.CodeValidationFailed) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeValidationFailed)
	}
}

// TestGetLayoutFullDocument verifies that every stored entity is returned.
func TestGetLayoutFullDocument(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"a1", "a2", "a3"} {
		if _, err := store.PatchAgent("s1", id, wire.AgentPatch{GridSpan: wire.Some(wire.GridSpan{ColSpan: 1, RowSpan: 1})}); err != nil {
			t.Fatalf("PatchAgent(%s) failed: %v", id, err)
		}
	}
	for i, path := range []string{"a.go", "b.go"} {
		id := []string{"p1", "p2"}[i]
		if _, err := store.PatchFilePreview("s1", id, wire.FilePreviewPatch{Path: wire.Some(path)}); err != nil {
			t.Fatalf("PatchFilePreview(%s) failed: %v", id, err)
		}
	}
	if _, err := store.PatchEditor("s1", wire.EditorPatch{GridCardID: wire.Some("card")}); err != nil {
		t.Fatalf("PatchEditor failed: %v", err)
	}

	got, err := store.GetLayout("s1")
	if err != nil {
		t.Fatalf("GetLayout failed: %v", err)
	}
	if len(got.AgentLayouts) != 3 {
		t.Errorf("agents = %d, want 3", len(got.AgentLayouts))
	}
	if len(got.FilePreviewLayouts) != 2 {
		t.Errorf("previews = %d, want 2", len(got.FilePreviewLayouts))
	}
	if got.EditorGridCardID == nil || *got.EditorGridCardID != "card" {
		t.Errorf("editor card = %v, want card", got.EditorGridCardID)
	}
}

func TestTouchDevice(t *testing.T) {
	store := newTestStore(t)

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.TouchDevice("s1", "tab-1", "u1", 0, first); err != nil {
		t.Fatalf("TouchDevice failed: %v", err)
	}
	if err := store.TouchDevice("s1", "tab-1", "", 3, first.Add(time.Minute)); err != nil {
		t.Fatalf("TouchDevice failed: %v", err)
	}

	got, err := store.GetDevice("s1", "tab-1")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetDevice returned nil")
	}
	if got.UserID != "u1" {
		t.Errorf("UserID = %q, want u1 kept", got.UserID)
	}
	if !got.FirstSeen.Equal(first) {
		t.Errorf("FirstSeen = %v, want %v", got.FirstSeen, first)
	}
	if !got.LastSeen.Equal(first.Add(time.Minute)) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, first.Add(time.Minute))
	}
	if got.Messages != 3 {
		t.Errorf("Messages = %d, want 3", got.Messages)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetDevice("s1", "nope")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown device, got %+v", got)
	}
}

func TestListDevicesMostRecentFirst(t *testing.T) {
	store := newTestStore(t)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	touches := []struct {
		session, device string
		at              time.Time
	}{
		{"s1", "old", base},
		{"s1", "new", base.Add(2 * time.Second)},
		{"s1", "mid", base.Add(time.Second)},
		{"s2", "elsewhere", base.Add(time.Hour)},
	}
	for _, tc := range touches {
		if err := store.TouchDevice(tc.session, tc.device, "", 1, tc.at); err != nil {
			t.Fatalf("TouchDevice failed: %v", err)
		}
	}

	devices, err := store.ListDevices("s1")
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	var ids []string
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	want := []string{"new", "mid", "old"}
	if len(ids) != len(want) {
		t.Fatalf("devices = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("devices = %v, want %v", ids, want)
		}
	}
}
