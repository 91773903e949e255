package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kbase-labs/kbagent/pkg/writer"
)

// TraceStore persists finished request traces and their span trees.
type TraceStore struct {
	client *Client
}

// NewTraceStore creates a trace store.
func NewTraceStore(client *Client) *TraceStore {
	return &TraceStore{client: client}
}

// BulkUpsertTraces writes a batch of traces and spans in one
// transaction. Upserts are keyed by trace and span id, so replaying a
// batch after a writer restart is harmless.
func (s *TraceStore) BulkUpsertTraces(ctx context.Context, entries []*writer.TraceEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.client.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO traces (trace_id, session_id, execution, elapsed_ms, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (trace_id) DO UPDATE SET
				execution  = EXCLUDED.execution,
				elapsed_ms = EXCLUDED.elapsed_ms`,
			e.TraceID, e.SessionID, e.Execution, e.ElapsedMS, e.CreatedAt)

		for _, sp := range e.Spans {
			metadata, merr := json.Marshal(sp.Metadata)
			if merr != nil {
				metadata = nil
			}
			batch.Queue(`
				INSERT INTO spans (span_id, trace_id, parent_id, name, kind,
					start_time, end_time, latency_ms, status, error, metadata)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (span_id) DO UPDATE SET
					end_time   = EXCLUDED.end_time,
					latency_ms = EXCLUDED.latency_ms,
					status     = EXCLUDED.status,
					error      = EXCLUDED.error,
					metadata   = EXCLUDED.metadata`,
				sp.SpanID, sp.TraceID, sp.ParentID, sp.Name, sp.Kind,
				sp.StartTime, sp.EndTime, sp.LatencyMS, string(sp.Status), sp.Error, metadata)
		}
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write trace batch: %w", err)
	}
	return tx.Commit(ctx)
}

// GetTrace loads one persisted execution trace by id.
func (s *TraceStore) GetTrace(ctx context.Context, traceID string) (json.RawMessage, error) {
	var execution json.RawMessage
	err := s.client.pool.QueryRow(ctx,
		`SELECT execution FROM traces WHERE trace_id = $1`, traceID).Scan(&execution)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace %s: %w", traceID, err)
	}
	return execution, nil
}
