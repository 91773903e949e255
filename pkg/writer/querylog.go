package writer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbase-labs/kbagent/pkg/models"
)

// Query-log writer batching parameters.
const (
	queryLogBatchSize     = 50
	queryLogFlushInterval = 10 * time.Second

	// faqSyncEveryNFlushes: the FAQ table is refreshed from aggregates
	// on every Nth flush.
	faqSyncEveryNFlushes = 5
	// faqMinFrequency: a query enters the FAQ once asked this often.
	faqMinFrequency = 3
)

// QueryLog is one answered request queued for analytics.
type QueryLog struct {
	ID              string
	SessionID       string
	UserID          string
	Query           string
	NormalizedQuery string
	AgentKind       models.AgentKind
	Intent          models.IntentLabel
	Success         bool
	Steps           int
	LatencyMS       int64
	CreatedAt       time.Time
}

// QueryLogStore persists query logs and their rollups.
type QueryLogStore interface {
	InsertQueryLogs(ctx context.Context, logs []*QueryLog) error
	UpsertQueryAggregates(ctx context.Context, logs []*QueryLog) error
	SyncFAQ(ctx context.Context, minFrequency int) error
}

// QueryLogWriter buffers query logs, maintains per-query aggregates,
// and periodically promotes frequent queries into the FAQ table.
type QueryLogWriter struct {
	*Buffered[*QueryLog]
	store      QueryLogStore
	flushCount atomic.Int64
}

// NewQueryLogWriter creates a query-log writer over the given store.
func NewQueryLogWriter(store QueryLogStore) *QueryLogWriter {
	w := &QueryLogWriter{store: store}
	w.Buffered = NewBuffered("querylog", queryLogBatchSize, queryLogFlushInterval, w.flushBatch)
	return w
}

// SubmitQuery fills in id, normalized form, and timestamp, then queues.
func (w *QueryLogWriter) SubmitQuery(log *QueryLog) {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.NormalizedQuery == "" {
		log.NormalizedQuery = NormalizeQuery(log.Query)
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	w.Submit(log)
}

func (w *QueryLogWriter) flushBatch(ctx context.Context, logs []*QueryLog) error {
	if err := w.store.InsertQueryLogs(ctx, logs); err != nil {
		return fmt.Errorf("failed to insert query logs: %w", err)
	}
	if err := w.store.UpsertQueryAggregates(ctx, logs); err != nil {
		return fmt.Errorf("failed to upsert query aggregates: %w", err)
	}

	if n := w.flushCount.Add(1); n%faqSyncEveryNFlushes == 0 {
		if err := w.store.SyncFAQ(ctx, faqMinFrequency); err != nil {
			slog.Error("FAQ sync failed", "error", err)
		}
	}
	return nil
}

// NormalizeQuery canonicalizes a query for aggregation: lowercase,
// collapsed whitespace, trailing punctuation stripped.
func NormalizeQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.Join(strings.Fields(q), " ")
	return strings.TrimRight(q, ".!?。？！ ")
}
