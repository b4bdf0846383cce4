// Package server is the reference layout backend: REST endpoints over the
// durable layout store and one realtime topic per session.
//
// Routes:
//   - GET   /sessions/{id}/layout
//   - PATCH /sessions/{id}/layout
//   - PATCH /sessions/{id}/layout/agents/{agentId}
//   - PATCH /sessions/{id}/layout/previews/{previewId}
//   - PATCH /sessions/{id}/layout/editor
//   - GET   /sessions/{id}/devices
//   - GET   /sessions/{id}/ws (WebSocket topic)
//   - GET   /status (loopback only)
//   - GET   /health
//
// The topic is a plain relay: every frame received on a session is fanned
// out to every connection on that session, the sender included. Receivers
// filter their own echoes by device id.
package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	// gorilla/websocket provides the WebSocket protocol: upgrade, framing,
	// ping/pong, and close handling.
	"github.com/gorilla/websocket"

	// Rate limiting for published frames to prevent topic flooding.
	"golang.org/x/time/rate"

	"github.com/pseudocoder/layoutsync/internal/auth"
	"github.com/pseudocoder/layoutsync/internal/storage"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// channelBufferSize is the buffer size for the broadcast channel and per-client
// send channels. If a client's buffer fills up, frames are dropped for that
// client only.
const channelBufferSize = 256

// Default publish limits per connection.
const (
	DefaultPublishRate  = 50
	DefaultPublishBurst = 100
)

// Store is the persistence the backend needs. *storage.SQLiteStore
// implements it.
type Store interface {
	GetLayout(sessionID string) (wire.Layout, error)
	PatchLayout(sessionID string, p wire.LayoutPatch) (wire.LayoutFields, error)
	PatchAgent(sessionID, agentID string, p wire.AgentPatch) (wire.AgentLayout, error)
	PatchFilePreview(sessionID, previewID string, p wire.FilePreviewPatch) (wire.FilePreviewLayout, error)
	PatchEditor(sessionID string, p wire.EditorPatch) (wire.EditorFields, error)

	TouchDevice(sessionID, deviceID, userID string, messages int64, at time.Time) error
	ListDevices(sessionID string) ([]*storage.Device, error)

	RecordLatency(route string, status int, d time.Duration, at time.Time) error
	LatencySince(since time.Time) (storage.LatencyStats, error)
	PruneLatency(cutoff time.Time) (int64, error)
}

// Options configures a Server.
type Options struct {
	// Addr is the address to listen on (e.g., "127.0.0.1:7171").
	Addr string

	// Store holds the authoritative layouts. Required.
	Store Store

	// AuthToken, when set, must be presented as a bearer token on every
	// route except /health. Ignored when Auth is set.
	AuthToken string

	// Auth verifies bearer tokens, for example against a bcrypt hash.
	Auth *auth.Verifier

	// PublishRate and PublishBurst bound frames per second per connection.
	// Zero means the defaults.
	PublishRate  float64
	PublishBurst int

	// LatencyRetention is how long request latency samples are kept.
	// Zero means 24 hours.
	LatencyRetention time.Duration
}

// Server manages the REST endpoints and the session topics.
type Server struct {
	// addr is the address to listen on.
	addr string

	store Store

	// auth checks bearer tokens. Nil or disabled accepts every request.
	// Swapped by SetAuth when the config file changes.
	auth atomic.Pointer[auth.Verifier]

	publishRate  rate.Limit
	publishBurst int

	retention time.Duration

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// clients tracks all connected WebSocket clients across sessions.
	clients map[*Client]bool

	// mu protects the clients map and stopped flag from concurrent access.
	mu sync.RWMutex

	// stopped indicates whether the server has been stopped.
	// This prevents sending to a closed broadcast channel.
	stopped bool

	// broadcast receives frames to relay to the connections of their
	// session.
	broadcast chan wire.Message

	// stopPrune ends the latency pruning loop.
	stopPrune chan struct{}

	startTime time.Time

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server
}

// Client represents a single WebSocket connection on a session topic.
// Each client has its own goroutine for writing frames, which prevents
// slow clients from blocking the relay.
type Client struct {
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// sessionID is the topic this connection joined.
	sessionID string

	// send is a buffered channel for outgoing frames.
	send chan wire.Message

	// done is closed to signal the client should shut down.
	done chan struct{}

	// sendOnce ensures done is only closed once. Both Stop() and
	// readPump() may close it.
	sendOnce sync.Once

	// server is a reference back to the parent server.
	server *Server

	// publishLimiter throttles frames read from this connection.
	publishLimiter *rate.Limiter
}

// NewServer creates a backend server.
// Call StartAsync() to begin accepting connections.
func NewServer(opts Options) *Server {
	s := &Server{
		addr:         opts.Addr,
		store:        opts.Store,
		publishRate:  rate.Limit(opts.PublishRate),
		publishBurst: opts.PublishBurst,
		retention:    opts.LatencyRetention,
		clients:      make(map[*Client]bool),
		broadcast:    make(chan wire.Message, channelBufferSize),
		stopPrune:    make(chan struct{}),
		startTime:    time.Now(),
		upgrader: websocket.Upgrader{
			// Browser tabs connect from the UI origin, not the backend's.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	verifier := opts.Auth
	if verifier == nil && opts.AuthToken != "" {
		// A plain token cannot fail verifier construction.
		verifier, _ = auth.NewVerifier(opts.AuthToken, "")
	}
	s.auth.Store(verifier)
	if s.publishRate <= 0 {
		s.publishRate = DefaultPublishRate
	}
	if s.publishBurst <= 0 {
		s.publishBurst = DefaultPublishBurst
	}
	if s.retention <= 0 {
		s.retention = 24 * time.Hour
	}
	return s
}

// SetAuth replaces the token verifier. Established WebSocket connections
// are not re-checked.
func (s *Server) SetAuth(v *auth.Verifier) {
	s.auth.Store(v)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// SessionClients returns the number of connections per session.
func (s *Server) SessionClients() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for c := range s.clients {
		out[c.sessionID]++
	}
	return out
}
