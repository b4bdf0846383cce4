package server

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// pruneInterval is how often old latency samples are deleted.
const pruneInterval = time.Hour

// Handler returns the server's HTTP handler without listening. Tests
// serve it with httptest; StartAsync serves it on Addr.
func (s *Server) Handler() http.Handler {
	return s.createMux()
}

// StartAsync starts the server in a goroutine and returns any startup errors.
//
// The returned channel receives nil if startup succeeded, or an error if
// the listener could not be created (e.g., port already in use).
// After receiving from the channel, the server is either running or failed.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	if s.store == nil {
		errCh <- errors.New("server: no store configured")
		close(errCh)
		return errCh
	}

	mux := s.createMux()

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}
	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.Run()

	go func() {
		log.Printf("server: listening on %s", s.addr)
		errCh <- nil
		close(errCh)

		// Serve blocks until the server is stopped
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// Run starts the relay and maintenance goroutines without listening.
// StartAsync calls it; tests that serve Handler() call it directly.
func (s *Server) Run() {
	go s.runBroadcaster()
	go s.runPruner()
}

// runPruner deletes latency samples older than the retention window.
func (s *Server) runPruner() {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPrune:
			return
		case <-ticker.C:
			n, err := s.store.PruneLatency(time.Now().Add(-s.retention))
			if err != nil {
				log.Printf("server: prune latency samples: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("server: pruned %d latency samples", n)
			}
		}
	}
}

// Stop gracefully shuts down the server.
// It sends close frames to all clients, closes connections, and stops
// accepting new ones. This also closes the broadcast channel to allow
// the runBroadcaster goroutine to exit cleanly.
func (s *Server) Stop() error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return nil // Already stopped
	}
	s.stopped = true

	// writePump sends the close frame and closes the connection when it
	// sees done closed. We don't write directly here to avoid racing with
	// writePump.
	for client := range s.clients {
		client.closeSend()
	}
	s.clients = make(map[*Client]bool)

	// Close the broadcast channel to allow runBroadcaster to exit.
	// This must happen after setting stopped=true to prevent panics
	// from concurrent Broadcast() calls.
	close(s.broadcast)
	close(s.stopPrune)

	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}
