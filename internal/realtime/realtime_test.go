package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

func testMessage(t *testing.T, sessionID, deviceID string) wire.Message {
	t.Helper()
	msg, err := wire.NewMessage(sessionID, "u1", deviceID, wire.MessageTypeViewMode,
		wire.ViewModePayload{ViewMode: "focus"})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	return msg
}

func TestBusDeliversToEverySubscriberIncludingSender(t *testing.T) {
	bus := NewBus()
	topic := bus.Topic("s1")

	var got []string
	topic.Subscribe(func(m wire.Message) { got = append(got, "first:"+m.DeviceID) })
	topic.Subscribe(func(m wire.Message) { got = append(got, "second:"+m.DeviceID) })

	if err := topic.Publish(context.Background(), testMessage(t, "s1", "d1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	want := []string{"first:d1", "second:d1"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBusTopicsAreIsolated(t *testing.T) {
	bus := NewBus()
	count := 0
	bus.Topic("s2").Subscribe(func(wire.Message) { count++ })

	if err := bus.Topic("s1").Publish(context.Background(), testMessage(t, "s1", "d1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("message leaked across sessions")
	}

	if err := bus.Topic("s1").Publish(context.Background(), testMessage(t, "s2", "d1")); err == nil {
		t.Fatal("expected error publishing another session's message")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	topic := bus.Topic("s1")
	count := 0
	unsubscribe := topic.Subscribe(func(wire.Message) { count++ })
	if bus.Subscribers("s1") != 1 {
		t.Fatalf("Subscribers = %d", bus.Subscribers("s1"))
	}

	unsubscribe()
	unsubscribe()
	topic.Publish(context.Background(), testMessage(t, "s1", "d1"))

	if count != 0 || bus.Subscribers("s1") != 0 {
		t.Fatalf("count = %d, subscribers = %d", count, bus.Subscribers("s1"))
	}
}

// testHub is a minimal session topic server: every frame is relayed to
// every connection, sender included.
type testHub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
	auth  []string
	paths []string
}

func newTestHub(t *testing.T) (*testHub, *httptest.Server) {
	t.Helper()
	h := &testHub{conns: make(map[*websocket.Conn]bool)}
	srv := httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(func() {
		h.dropAll()
		srv.Close()
	})
	return h, srv
}

func (h *testHub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns[conn] = true
	h.auth = append(h.auth, r.Header.Get("Authorization"))
	h.paths = append(h.paths, r.URL.EscapedPath())
	h.mu.Unlock()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			return
		}
		h.mu.Lock()
		for c := range h.conns {
			c.WriteMessage(mt, data)
		}
		h.mu.Unlock()
	}
}

func (h *testHub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		c.Close()
	}
}

func (h *testHub) connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.paths)
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func receive(t *testing.T, ch <-chan wire.Message) wire.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return wire.Message{}
	}
}

func TestSessionURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:7171", "ws://localhost:7171/sessions/s%201/ws"},
		{"https://example.com/", "wss://example.com/sessions/s%201/ws"},
		{"ws://10.0.0.1:80", "ws://10.0.0.1:80/sessions/s%201/ws"},
	}
	for _, tt := range tests {
		got, err := SessionURL(tt.base, "s 1")
		if err != nil {
			t.Fatalf("SessionURL(%q) failed: %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("SessionURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
	if _, err := SessionURL("ftp://x", "s1"); err == nil {
		t.Error("expected error for ftp scheme")
	}
}

func TestWSChannelPublishEchoesToSubscribers(t *testing.T) {
	hub, srv := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := DialWS(ctx, WSOptions{BaseURL: srv.URL, SessionID: "s1", Token: "tok", NewBackOff: fastBackOff})
	if err != nil {
		t.Fatalf("DialWS failed: %v", err)
	}
	defer ch.Close()
	if err := ch.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected failed: %v", err)
	}

	received := make(chan wire.Message, 4)
	ch.Subscribe(func(m wire.Message) { received <- m })

	sent := testMessage(t, "s1", "d1")
	if err := ch.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := receive(t, received)
	if got.DeviceID != "d1" || got.Type != wire.MessageTypeViewMode || string(got.Payload) != string(sent.Payload) {
		t.Fatalf("got %+v", got)
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if hub.auth[0] != "Bearer tok" || hub.paths[0] != "/sessions/s1/ws" {
		t.Fatalf("handshake auth=%q path=%q", hub.auth[0], hub.paths[0])
	}
}

func TestWSChannelReconnectsAndNotifies(t *testing.T) {
	hub, srv := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reconnected := make(chan struct{}, 1)
	ch, err := DialWS(ctx, WSOptions{
		BaseURL:     srv.URL,
		SessionID:   "s1",
		NewBackOff:  fastBackOff,
		OnReconnect: func() { reconnected <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("DialWS failed: %v", err)
	}
	defer ch.Close()
	if err := ch.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected failed: %v", err)
	}

	hub.dropAll()

	select {
	case <-reconnected:
	case <-ctx.Done():
		t.Fatal("OnReconnect was not called")
	}
	if hub.connections() < 2 {
		t.Fatalf("connections = %d, want at least 2", hub.connections())
	}
	if err := ch.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected after reconnect failed: %v", err)
	}
}

func TestWSChannelPublishWhileDisconnectedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := DialWS(ctx, WSOptions{BaseURL: base, SessionID: "s1", NewBackOff: fastBackOff})
	if err != nil {
		t.Fatalf("DialWS failed: %v", err)
	}
	defer ch.Close()

	if ch.Connected() {
		t.Fatal("channel should not be connected")
	}
	err = ch.Publish(ctx, testMessage(t, "s1", "d1"))
	if !apperrors.IsTransient(err) {
		t.Fatalf("err = %v, want network.transient", err)
	}
}

func TestWSChannelPublishAfterClose(t *testing.T) {
	_, srv := newTestHub(t)
	ctx := context.Background()

	ch, err := DialWS(ctx, WSOptions{BaseURL: srv.URL, SessionID: "s1", NewBackOff: fastBackOff})
	if err != nil {
		t.Fatalf("DialWS failed: %v", err)
	}
	ch.Close()

	if err := ch.Publish(ctx, testMessage(t, "s1", "d1")); err != ErrClosed {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
