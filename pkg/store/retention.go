package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionStore implements the cleanup service's deletes. Spans go
// with their traces through the foreign key cascade; query aggregates
// and FAQ entries are rollups and are never deleted.
type RetentionStore struct {
	client *Client
}

// NewRetentionStore creates a retention store.
func NewRetentionStore(client *Client) *RetentionStore {
	return &RetentionStore{client: client}
}

// DeleteTracesBefore removes traces created before the cutoff.
func (s *RetentionStore) DeleteTracesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.client.pool.Exec(ctx,
		`DELETE FROM traces WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old traces: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteQueryLogsBefore removes raw query logs created before the cutoff.
func (s *RetentionStore) DeleteQueryLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.client.pool.Exec(ctx,
		`DELETE FROM query_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old query logs: %w", err)
	}
	return tag.RowsAffected(), nil
}
