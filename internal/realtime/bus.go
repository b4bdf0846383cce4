package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/pseudocoder/layoutsync/internal/wire"
)

// Bus is an in-process set of session topics. Publish delivers
// synchronously, in subscription order, before it returns.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*subscribers
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[string]*subscribers)}
}

// Topic returns the Channel for sessionID.
func (b *Bus) Topic(sessionID string) Channel {
	return &busTopic{sessionID: sessionID, subs: b.topic(sessionID)}
}

// Subscribers returns the number of handlers on sessionID's topic.
func (b *Bus) Subscribers(sessionID string) int {
	return b.topic(sessionID).len()
}

func (b *Bus) topic(sessionID string) *subscribers {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[sessionID]
	if !ok {
		t = &subscribers{}
		b.topics[sessionID] = t
	}
	return t
}

type busTopic struct {
	sessionID string
	subs      *subscribers
}

func (t *busTopic) Publish(ctx context.Context, msg wire.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.SessionID != t.sessionID {
		return fmt.Errorf("publish: message for session %q on topic %q", msg.SessionID, t.sessionID)
	}
	t.subs.dispatch(msg)
	return nil
}

func (t *busTopic) Subscribe(h Handler) func() {
	return t.subs.add(h)
}
