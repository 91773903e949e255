package writer

import (
	"context"
	"log/slog"
	"time"

	"github.com/kbase-labs/kbagent/pkg/trace"
)

// Trace writer batching parameters.
const (
	traceBatchSize     = 100
	traceFlushInterval = 5 * time.Second
)

// TraceEntry is one finished request trace queued for persistence:
// the closed span tree plus the serialized execution trace.
type TraceEntry struct {
	TraceID   string
	SessionID string
	Spans     []*trace.Span
	Execution []byte
	ElapsedMS int64
	CreatedAt time.Time
}

// TraceStore persists trace batches. Upserts are idempotent by trace id
// so a replayed batch is harmless.
type TraceStore interface {
	BulkUpsertTraces(ctx context.Context, entries []*TraceEntry) error
}

// TraceWriter buffers finished traces and bulk-upserts them.
type TraceWriter struct {
	*Buffered[*TraceEntry]
}

// NewTraceWriter creates a trace writer over the given store.
func NewTraceWriter(store TraceStore) *TraceWriter {
	return &TraceWriter{
		Buffered: NewBuffered("trace", traceBatchSize, traceFlushInterval, store.BulkUpsertTraces),
	}
}

// SubmitTrace closes out a request's trace artifacts and queues them.
// spans must already be ended; the execution trace is serialized here.
func (w *TraceWriter) SubmitTrace(tc *trace.Context, et *trace.ExecutionTrace) {
	data, err := et.Marshal()
	if err != nil {
		slog.Error("Failed to serialize execution trace", "trace_id", et.TraceID, "error", err)
		data = nil
	}
	w.Submit(&TraceEntry{
		TraceID:   tc.TraceID,
		SessionID: et.SessionID,
		Spans:     tc.Spans(),
		Execution: data,
		ElapsedMS: et.ElapsedMS,
		CreatedAt: time.Now(),
	})
}
