// Package writer provides background buffered persistence: items are
// queued on the request path and flushed in batches by interval or by
// size, so storage latency never blocks a response.
package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// flushTimeout bounds one storage flush.
const flushTimeout = 30 * time.Second

// Buffered is a generic batch writer. Submit never blocks on storage;
// flush failures are logged and the batch is dropped.
type Buffered[T any] struct {
	name      string
	batchSize int
	interval  time.Duration
	flush     func(ctx context.Context, items []T) error

	mu    sync.Mutex
	queue []T

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewBuffered creates a writer that flushes every interval or as soon
// as batchSize items are queued.
func NewBuffered[T any](name string, batchSize int, interval time.Duration, flush func(ctx context.Context, items []T) error) *Buffered[T] {
	return &Buffered[T]{
		name:      name,
		batchSize: batchSize,
		interval:  interval,
		flush:     flush,
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background flush loop.
func (w *Buffered[T]) Start() {
	go w.run()
}

// Submit queues one item. Reaching the batch size triggers an immediate
// flush without waiting for the ticker.
func (w *Buffered[T]) Submit(item T) {
	w.mu.Lock()
	w.queue = append(w.queue, item)
	full := len(w.queue) >= w.batchSize
	w.mu.Unlock()

	if full {
		select {
		case w.kick <- struct{}{}:
		default:
		}
	}
}

// Stop halts the loop and performs a final flush of anything queued.
func (w *Buffered[T]) Stop(ctx context.Context) {
	close(w.stop)
	select {
	case <-w.done:
	case <-ctx.Done():
		slog.Warn("Writer stop timed out", "writer", w.name)
		return
	}
	w.flushNow(ctx)
}

// Pending returns the current queue depth.
func (w *Buffered[T]) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *Buffered[T]) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.flushNow(context.Background())
		case <-w.kick:
			w.flushNow(context.Background())
		case <-w.stop:
			return
		}
	}
}

func (w *Buffered[T]) flushNow(ctx context.Context) {
	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := w.flush(fctx, batch); err != nil {
		slog.Error("Writer flush failed, dropping batch",
			"writer", w.name, "items", len(batch), "error", err)
	}
}
