package orchestrator

import (
	"sync"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// unboundedChunks decouples producers from the consumer: emit never
// blocks, chunks are delivered in arrival order, and close drains the
// queue before closing the outbound channel.
type unboundedChunks struct {
	mu     sync.Mutex
	queue  []models.StreamChunk
	closed bool

	signal chan struct{}
	ch     chan models.StreamChunk
}

func newUnboundedChunks() *unboundedChunks {
	u := &unboundedChunks{
		signal: make(chan struct{}, 1),
		ch:     make(chan models.StreamChunk),
	}
	go u.drain()
	return u
}

// emit enqueues one chunk. Safe for concurrent producers.
func (u *unboundedChunks) emit(c models.StreamChunk) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.queue = append(u.queue, c)
	u.mu.Unlock()

	select {
	case u.signal <- struct{}{}:
	default:
	}
}

// close marks the end of the stream; queued chunks are still delivered.
func (u *unboundedChunks) close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()

	select {
	case u.signal <- struct{}{}:
	default:
	}
}

func (u *unboundedChunks) drain() {
	for {
		u.mu.Lock()
		batch := u.queue
		u.queue = nil
		closed := u.closed
		u.mu.Unlock()

		for _, c := range batch {
			u.ch <- c
		}
		if closed {
			u.mu.Lock()
			remaining := len(u.queue)
			u.mu.Unlock()
			if remaining == 0 {
				close(u.ch)
				return
			}
			continue
		}
		<-u.signal
	}
}
