package server

import (
	"log"
	"net/http"
	"time"

	"github.com/pseudocoder/layoutsync/internal/wire"
)

// StatusHandler handles HTTP requests for backend status.
// This endpoint is restricted to local machine addresses.
// It provides the information shown by the "layoutsync status" command.
type StatusHandler struct {
	server *Server
	now    func() time.Time
}

// NewStatusHandler creates a new StatusHandler for s.
func NewStatusHandler(s *Server) *StatusHandler {
	return &StatusHandler{server: s, now: time.Now}
}

// ServeHTTP handles HTTP GET requests to the /status endpoint.
// Non-local requests receive HTTP 403 Forbidden.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isLoopbackRequest(r) {
		http.Error(w, "Forbidden: status endpoint is local-only", http.StatusForbidden)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := h.now()
	sessions := h.server.SessionClients()
	total := 0
	for _, n := range sessions {
		total += n
	}

	resp := wire.Status{
		ListeningAddress: h.server.Addr(),
		Sessions:         sessions,
		ConnectedClients: total,
		UptimeSeconds:    int64(now.Sub(h.server.startTime).Seconds()),
		RequireAuth:      h.server.auth.Load().Enabled(),
	}

	stats, err := h.server.store.LatencySince(now.Add(-time.Hour))
	if err != nil {
		// Status stays useful without latency numbers.
		log.Printf("server: status latency query failed: %v", err)
	} else {
		resp.RequestsLastHour = stats.Samples
		resp.ErrorsLastHour = stats.Errors
		resp.P95MillisLastHour = stats.P95.Milliseconds()
	}

	writeJSON(w, http.StatusOK, resp)
}
