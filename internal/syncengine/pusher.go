package syncengine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pseudocoder/layoutsync/internal/clock"
	"github.com/pseudocoder/layoutsync/internal/debounce"
	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
)

// pushJob is one persistence request.
type pushJob struct {
	name string
	run  func(ctx context.Context) error
}

// pusher routes persistence requests. Continuous changes go through a
// per-target debounce registry; discrete changes are queued immediately.
// Both end up on one FIFO worker, so a device's pushes reach the backend in
// the order they were released.
//
// Failures are logged and swallowed. Nothing waits on a push except Drain.
type pusher struct {
	debounced *debounce.Registry[pushJob]

	mu      sync.Mutex
	queue   []pushJob
	busy    bool
	closed  bool
	waiters []chan struct{}
	wake    chan struct{}
	done    chan struct{}

	// failures counts swallowed push errors.
	failures int
}

func newPusher(clk clock.Clock, window time.Duration) *pusher {
	p := &pusher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	p.debounced = debounce.NewRegistry(clk, window, func(_ debounce.Target, job pushJob) {
		p.enqueue(job)
	})
	go p.run()
	return p
}

// now queues job without debouncing.
func (p *pusher) now(job pushJob) {
	p.enqueue(job)
}

// later debounces job on target; only the last job within the window runs.
func (p *pusher) later(target debounce.Target, job pushJob) {
	p.debounced.Call(target, job)
}

// cancel discards a pending debounced job for target.
func (p *pusher) cancel(target debounce.Target) {
	p.debounced.Get(target).Stop()
}

func (p *pusher) enqueue(job pushJob) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		log.Printf("syncengine: dropping %s after detach", job.name)
		return
	}
	p.queue = append(p.queue, job)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *pusher) run() {
	defer close(p.done)

	for {
		p.mu.Lock()
		for len(p.queue) == 0 {
			p.busy = false
			p.notifyIdleLocked()
			if p.closed {
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			<-p.wake
			p.mu.Lock()
		}
		job := p.queue[0]
		p.queue[0] = pushJob{}
		p.queue = p.queue[1:]
		p.busy = true
		p.mu.Unlock()

		p.execute(job)
	}
}

// execute runs job without a deadline. In-flight pushes are never
// cancelled.
func (p *pusher) execute(job pushJob) {
	err := job.run(context.Background())
	if err == nil {
		return
	}

	p.mu.Lock()
	p.failures++
	p.mu.Unlock()

	if apperrors.IsTransient(err) {
		log.Printf("syncengine: %s skipped, backend unavailable: %v", job.name, err)
		return
	}
	log.Printf("syncengine: %s failed [%s]: %v", job.name, apperrors.GetCode(err), err)
}

func (p *pusher) notifyIdleLocked() {
	for _, ch := range p.waiters {
		close(ch)
	}
	p.waiters = nil
}

// flush releases every pending debounced job to the queue.
func (p *pusher) flush() int {
	return p.debounced.FlushAll()
}

// wait blocks until the queue is empty and no push is in flight.
func (p *pusher) wait(ctx context.Context) error {
	p.mu.Lock()
	if len(p.queue) == 0 && !p.busy {
		p.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting jobs. Queued jobs still run; the worker exits when
// the queue is empty.
func (p *pusher) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *pusher) failureCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}
