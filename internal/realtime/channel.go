// Package realtime carries layout messages between devices attached to the
// same session.
//
// A Channel delivers every message published on the session topic to every
// subscriber, including the subscriber that published it. Filtering out a
// device's own echoes is the receiver's job; the channel only guarantees
// per-connection FIFO order.
//
// Two implementations are provided: WSChannel speaks to the backend's
// /sessions/{id}/ws topic over a WebSocket, and Bus is an in-process topic
// for embeddings that host several devices in one process.
package realtime

import (
	"context"
	"sync"

	"github.com/pseudocoder/layoutsync/internal/wire"
)

// Handler receives messages from a Channel.
type Handler func(msg wire.Message)

// Channel is a session topic.
type Channel interface {
	// Publish broadcasts msg to every subscriber of the topic.
	Publish(ctx context.Context, msg wire.Message) error

	// Subscribe registers h and returns the function that removes it.
	Subscribe(h Handler) (unsubscribe func())
}

// subscribers is an ordered handler list shared by the Channel
// implementations.
type subscribers struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []subscription
}

type subscription struct {
	id uint64
	h  Handler
}

func (s *subscribers) add(h Handler) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.handlers = append(s.handlers, subscription{id: id, h: h})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *subscribers) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.handlers {
		if sub.id == id {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return
		}
	}
}

func (s *subscribers) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// dispatch calls every handler in subscription order. The handler list is
// copied first so a handler may unsubscribe itself.
func (s *subscribers) dispatch(msg wire.Message) {
	s.mu.RLock()
	handlers := make([]Handler, len(s.handlers))
	for i, sub := range s.handlers {
		handlers[i] = sub.h
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(msg)
	}
}
