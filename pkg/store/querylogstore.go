package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kbase-labs/kbagent/pkg/writer"
)

// QueryLogStore persists answered queries, per-query aggregates, and
// the FAQ rollup.
type QueryLogStore struct {
	client *Client
}

// NewQueryLogStore creates a query-log store.
func NewQueryLogStore(client *Client) *QueryLogStore {
	return &QueryLogStore{client: client}
}

// InsertQueryLogs bulk-inserts a batch of query logs.
func (s *QueryLogStore) InsertQueryLogs(ctx context.Context, logs []*writer.QueryLog) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(`
			INSERT INTO query_logs (id, session_id, user_id, query, normalized_query,
				agent_kind, intent, success, steps, latency_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`,
			l.ID, l.SessionID, l.UserID, l.Query, l.NormalizedQuery,
			string(l.AgentKind), string(l.Intent), l.Success, l.Steps, l.LatencyMS, l.CreatedAt)
	}
	if err := s.client.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert query logs: %w", err)
	}
	return nil
}

// UpsertQueryAggregates folds a batch into the per-query rollup:
// frequency, first/last seen, and a distinct-user count refreshed from
// the raw logs.
func (s *QueryLogStore) UpsertQueryAggregates(ctx context.Context, logs []*writer.QueryLog) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(`
			INSERT INTO query_aggregates (normalized_query, sample_query, frequency, unique_users, first_seen, last_seen)
			VALUES ($1, $2, 1,
				(SELECT COUNT(DISTINCT user_id) FROM query_logs WHERE normalized_query = $1),
				$3, $3)
			ON CONFLICT (normalized_query) DO UPDATE SET
				frequency    = query_aggregates.frequency + 1,
				unique_users = (SELECT COUNT(DISTINCT user_id) FROM query_logs WHERE query_logs.normalized_query = $1),
				last_seen    = $3`,
			l.NormalizedQuery, l.Query, l.CreatedAt)
	}
	if err := s.client.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert query aggregates: %w", err)
	}
	return nil
}

// SyncFAQ promotes aggregates at or above minFrequency into the FAQ
// table.
func (s *QueryLogStore) SyncFAQ(ctx context.Context, minFrequency int) error {
	_, err := s.client.pool.Exec(ctx, `
		INSERT INTO faq_items (normalized_query, question, frequency, updated_at)
		SELECT normalized_query, sample_query, frequency, now()
		FROM query_aggregates
		WHERE frequency >= $1
		ON CONFLICT (normalized_query) DO UPDATE SET
			frequency  = EXCLUDED.frequency,
			updated_at = EXCLUDED.updated_at`,
		minFrequency)
	if err != nil {
		return fmt.Errorf("failed to sync FAQ items: %w", err)
	}
	return nil
}

// TopFAQ returns the most frequent FAQ entries.
type FAQItem struct {
	NormalizedQuery string `json:"normalized_query"`
	Question        string `json:"question"`
	Frequency       int64  `json:"frequency"`
}

// TopFAQ lists FAQ items by descending frequency.
func (s *QueryLogStore) TopFAQ(ctx context.Context, limit int) ([]FAQItem, error) {
	rows, err := s.client.pool.Query(ctx, `
		SELECT normalized_query, question, frequency
		FROM faq_items
		ORDER BY frequency DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list FAQ items: %w", err)
	}
	defer rows.Close()

	var items []FAQItem
	for rows.Next() {
		var item FAQItem
		if err := rows.Scan(&item.NormalizedQuery, &item.Question, &item.Frequency); err != nil {
			return nil, fmt.Errorf("failed to scan FAQ item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
