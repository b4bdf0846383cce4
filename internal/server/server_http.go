package server

import (
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pseudocoder/layoutsync/internal/auth"
	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for monitoring
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("GET /status", s.authenticated(NewStatusHandler(s)))

	mux.Handle("GET /sessions/{id}/layout", s.rest(s.handleGetLayout))
	mux.Handle("PATCH /sessions/{id}/layout", s.rest(s.handlePatchLayout))
	mux.Handle("PATCH /sessions/{id}/layout/agents/{agentId}", s.rest(s.handlePatchAgent))
	mux.Handle("PATCH /sessions/{id}/layout/previews/{previewId}", s.rest(s.handlePatchFilePreview))
	mux.Handle("PATCH /sessions/{id}/layout/editor", s.rest(s.handlePatchEditor))
	mux.Handle("GET /sessions/{id}/devices", s.rest(s.handleListDevices))

	mux.Handle("GET /sessions/{id}/ws", s.authenticated(http.HandlerFunc(s.handleWebSocket)))

	return mux
}

// rest wraps a REST handler with authentication and latency recording.
func (s *Server) rest(h http.HandlerFunc) http.Handler {
	return s.authenticated(s.timed(h))
}

// authenticated rejects requests without the configured bearer token.
func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Load().Verify(extractBearerToken(r)); err != nil {
			if errors.Is(err, auth.ErrTokenMissing) {
				log.Printf("server: %s %s rejected: missing authorization token", r.Method, r.URL.Path)
				writeErrorCode(w, http.StatusUnauthorized, apperrors.CodeAuthRequired, "missing token")
				return
			}
			log.Printf("server: %s %s rejected: invalid token", r.Method, r.URL.Path)
			writeErrorCode(w, http.StatusUnauthorized, apperrors.CodeAuthInvalid, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for latency samples.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// timed records one latency sample per request, keyed by route pattern.
func (s *Server) timed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		if err := s.store.RecordLatency(r.Pattern, rec.status, time.Since(start), start); err != nil {
			log.Printf("server: failed to record latency for %s: %v", r.Pattern, err)
		}
	}
}

// handleWebSocket upgrades an HTTP connection to a WebSocket connection on
// the session topic named by the path.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeErrorCode(w, http.StatusBadRequest, apperrors.CodeServerInvalidMessage, "session id is required")
		return
	}

	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		http.Error(w, "server stopped", http.StatusServiceUnavailable)
		return
	}

	// Upgrade the HTTP connection to a WebSocket connection.
	// This performs the WebSocket handshake (HTTP 101 Switching Protocols).
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:           conn,
		sessionID:      sessionID,
		send:           make(chan wire.Message, channelBufferSize),
		done:           make(chan struct{}),
		server:         s,
		publishLimiter: rate.NewLimiter(s.publishRate, s.publishBurst),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client] = true
	s.mu.Unlock()

	log.Printf("server: client joined session %s (%d total)", sessionID, s.ClientCount())

	go client.writePump()
	go client.readPump()
}

// extractBearerToken extracts the token from an Authorization header.
// Returns empty string if no valid bearer token is found.
// Supports both "Bearer <token>" header and "token" query parameter as fallback.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth != "" {
		// Check for "Bearer " prefix (case-insensitive)
		const bearerPrefix = "Bearer "
		if len(auth) > len(bearerPrefix) {
			prefix := auth[:len(bearerPrefix)]
			if prefix == bearerPrefix || prefix == "bearer " {
				return auth[len(bearerPrefix):]
			}
		}
	}

	// Fallback to query parameter for WebSocket connections
	// (browser WebSocket clients can't set custom headers)
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return ""
}

// isLoopbackRequest reports whether r comes from the local machine.
func isLoopbackRequest(r *http.Request) bool {
	// RemoteAddr is "host:port" or "[host]:port" for IPv6
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		log.Printf("server: failed to parse RemoteAddr %q: %v", r.RemoteAddr, err)
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		log.Printf("server: failed to parse IP from host %q", host)
		return false
	}

	return ip.IsLoopback()
}
