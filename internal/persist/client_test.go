package persist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/layout"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

// newTestBackend returns a server that records requests and replies with
// handler.
func newTestBackend(t *testing.T, handler http.HandlerFunc) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: baseURL, Token: "secret"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	if _, err := New(Options{BaseURL: "ftp://example.com"}); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}

func TestFetchLayout(t *testing.T) {
	srv, requests := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"session_id": "s1",
			"view_mode": "focus",
			"active_agent_id": "a1",
			"agent_layouts": {"a1": {"grid_span": {"col_span": 2, "row_span": 1}, "position": null}},
			"file_preview_layouts": {"p1": {"grid_span": null, "docked": true, "pinned": false, "path": "main.go"}},
			"editor_grid_card_id": "card",
			"editor_grid_span": {"col_span": 1, "row_span": 1},
			"editor_freeform_position": null
		}`)
	})
	c := newTestClient(t, srv.URL)

	l, err := c.FetchLayout(context.Background(), "s1")
	if err != nil {
		t.Fatalf("FetchLayout failed: %v", err)
	}
	if l.ViewMode != layout.ViewModeFocus || l.ActiveAgentID != "a1" {
		t.Errorf("top-level = %q %q", l.ViewMode, l.ActiveAgentID)
	}
	if a := l.AgentLayouts["a1"]; a.GridSpan == nil || a.GridSpan.ColSpan != 2 {
		t.Errorf("agent a1 = %+v", a)
	}
	if p := l.FilePreviewLayouts["p1"]; !p.Docked || p.Path != "main.go" {
		t.Errorf("preview p1 = %+v", p)
	}
	if l.Editor.GridCardID != "card" || l.Editor.GridSpan == nil {
		t.Errorf("editor = %+v", l.Editor)
	}

	reqs := requests()
	if len(reqs) != 1 || reqs[0].Method != http.MethodGet || reqs[0].Path != "/sessions/s1/layout" {
		t.Fatalf("requests = %+v", reqs)
	}
	if reqs[0].Auth != "Bearer secret" {
		t.Errorf("Authorization = %q", reqs[0].Auth)
	}
}

func TestPushAgentLayoutSendsPartialBody(t *testing.T) {
	srv, requests := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"grid_span":{"col_span":3,"row_span":2},"position":null}`)
	})
	c := newTestClient(t, srv.URL)

	patch := wire.AgentPatch{GridSpan: wire.Some(wire.GridSpan{ColSpan: 3, RowSpan: 2})}
	got, err := c.PushAgentLayout(context.Background(), "s1", "agent/1", patch)
	if err != nil {
		t.Fatalf("PushAgentLayout failed: %v", err)
	}
	if got.GridSpan == nil || got.GridSpan.ColSpan != 3 || got.Position != nil {
		t.Errorf("returned layout = %+v", got)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d", len(reqs))
	}
	if reqs[0].Method != http.MethodPatch || reqs[0].Path != "/sessions/s1/layout/agents/agent%2F1" {
		t.Errorf("request = %s %s", reqs[0].Method, reqs[0].Path)
	}
	if reqs[0].Body != `{"grid_span":{"col_span":3,"row_span":2}}` {
		t.Errorf("body = %s", reqs[0].Body)
	}
}

func TestPushLayoutAndEditor(t *testing.T) {
	srv, requests := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions/s1/layout":
			io.WriteString(w, `{"view_mode":"grid","active_agent_id":null}`)
		case "/sessions/s1/layout/editor":
			io.WriteString(w, `{"editor_grid_card_id":null,"editor_grid_span":null,"editor_freeform_position":null}`)
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	fields, err := c.PushLayout(ctx, "s1", wire.LayoutPatch{ActiveAgentID: wire.Null[string]()})
	if err != nil {
		t.Fatalf("PushLayout failed: %v", err)
	}
	if fields.ViewMode != "grid" || fields.ActiveAgentID != nil {
		t.Errorf("fields = %+v", fields)
	}

	editor, err := c.PushEditorLayout(ctx, "s1", wire.EditorPatch{GridCardID: wire.Null[string]()})
	if err != nil {
		t.Fatalf("PushEditorLayout failed: %v", err)
	}
	if editor.Exists() {
		t.Errorf("editor = %+v", editor)
	}

	reqs := requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d", len(reqs))
	}
	if reqs[0].Body != `{"active_agent_id":null}` {
		t.Errorf("layout body = %s", reqs[0].Body)
	}
	if reqs[1].Body != `{"editor_grid_card_id":null}` {
		t.Errorf("editor body = %s", reqs[1].Body)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"code":"rate_limited","message":"slow down"}`, apperrors.CodeNetworkTransient},
		{"server error", http.StatusInternalServerError, "boom", apperrors.CodeNetworkTransient},
		{"bad gateway", http.StatusBadGateway, "", apperrors.CodeNetworkTransient},
		{"validation", http.StatusUnprocessableEntity, `{"code":"validation.failed","message":"invalid view mode"}`, apperrors.CodeServerRejected},
		{"conflict", http.StatusConflict, `{"code":"conflict.detected","message":"path taken"}`, apperrors.CodeServerRejected},
		{"not found", http.StatusNotFound, "", apperrors.CodeServerRejected},
		{"bad body", http.StatusOK, `{"grid_span":`, apperrors.CodeDecodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			c := newTestClient(t, srv.URL)

			_, err := c.PushAgentLayout(context.Background(), "s1", "a1", wire.AgentPatch{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperrors.IsCode(err, tt.code) {
				t.Fatalf("code = %q (%v), want %q", apperrors.GetCode(err), err, tt.code)
			}
		})
	}
}

func TestRejectionCarriesServerMessage(t *testing.T) {
	srv, _ := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(wire.ErrorResponse{Code: "validation.failed", Message: "invalid view mode"})
	})
	c := newTestClient(t, srv.URL)

	_, err := c.PushLayout(context.Background(), "s1", wire.LayoutPatch{ViewMode: wire.Some("tiles")})
	want := "push layout rejected with status 422: invalid view mode"
	if apperrors.GetMessage(err) != want {
		t.Fatalf("message = %q, want %q", apperrors.GetMessage(err), want)
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.FetchLayout(context.Background(), "s1")
	if !apperrors.IsTransient(err) {
		t.Fatalf("err = %v, want network.transient", err)
	}
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	srv, requests := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"view_mode":"grid","active_agent_id":null}`)
	})
	c, err := New(Options{
		BaseURL: srv.URL,
		Limiter: rate.NewLimiter(rate.Every(time.Hour), 1),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := c.PushLayout(context.Background(), "s1", wire.LayoutPatch{}); err != nil {
		t.Fatalf("first push failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.PushLayout(ctx, "s1", wire.LayoutPatch{})
	if !apperrors.IsTransient(err) {
		t.Fatalf("err = %v, want network.transient from exhausted limiter", err)
	}
	if n := len(requests()); n != 1 {
		t.Fatalf("requests = %d, want 1", n)
	}
}

func TestListDevices(t *testing.T) {
	seen := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	srv, requests := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]wire.Device{{DeviceID: "tab-1", UserID: "u1", FirstSeen: seen, LastSeen: seen, Messages: 4}})
	})
	c := newTestClient(t, srv.URL)

	devices, err := c.ListDevices(context.Background(), "s 1")
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceID != "tab-1" || devices[0].Messages != 4 || !devices[0].LastSeen.Equal(seen) {
		t.Errorf("devices = %+v", devices)
	}

	reqs := requests()
	if len(reqs) != 1 || reqs[0].Method != http.MethodGet || reqs[0].Path != "/sessions/s%201/devices" {
		t.Errorf("requests = %+v", reqs)
	}
}
