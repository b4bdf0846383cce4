package server

import (
	"log"

	"github.com/pseudocoder/layoutsync/internal/wire"
)

// Broadcast relays a frame to every connection on msg.SessionID.
// This method is non-blocking; frames are queued for delivery.
// If the server has been stopped, this method does nothing.
//
// A frame that cannot be queued is never dropped silently: the connections
// that would have missed it are closed instead, and the resync their
// devices run on reconnect recovers the lost state.
func (s *Server) Broadcast(msg wire.Message) {
	// Hold RLock while checking stopped AND sending to avoid race with Stop().
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return
	}

	select {
	case s.broadcast <- msg:
	default:
		n := s.disconnectSession(msg.SessionID)
		log.Printf("server: broadcast channel full, closed %d clients on session %s to force a resync", n, msg.SessionID)
	}
}

// disconnectSession closes every connection on sessionID and returns how
// many there were. Callers hold s.mu.
func (s *Server) disconnectSession(sessionID string) int {
	n := 0
	for client := range s.clients {
		if client.sessionID == sessionID {
			client.closeSend()
			n++
		}
	}
	return n
}

// runBroadcaster reads from the broadcast channel and sends each frame to
// the clients of its session. A single goroutine keeps relay order FIFO.
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			if client.sessionID != msg.SessionID {
				continue
			}
			// Don't block on a slow client. It is disconnected instead, so
			// it never carries on with a gap in the session's frames.
			select {
			case <-client.done:
			case client.send <- msg:
			default:
				log.Printf("server: client send buffer full on session %s, closing it to force a resync", client.sessionID)
				client.closeSend()
			}
		}
		s.mu.RUnlock()
	}
}
