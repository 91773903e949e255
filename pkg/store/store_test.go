package store

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kbase-labs/kbagent/pkg/models"
	"github.com/kbase-labs/kbagent/pkg/trace"
	"github.com/kbase-labs/kbagent/pkg/writer"
)

// newTestClient creates a database client with CI/local environment
// detection. In CI (CI_DATABASE_URL set) it connects to an external
// PostgreSQL service container; locally it spins up a testcontainer.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			t.Skipf("skipping: could not start postgres container: %v", err)
		}

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	} else {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
	}

	client, err := NewClientFromDSN(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestClientHealth(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Greater(t, health.MaxConns, int32(0))
}

func traceEntry(traceID string) *writer.TraceEntry {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &writer.TraceEntry{
		TraceID:   traceID,
		SessionID: "sess-1",
		Spans: []*trace.Span{
			{
				SpanID:    traceID + "-span-1",
				TraceID:   traceID,
				Name:      "agent.request",
				Kind:      "request",
				StartTime: now,
				EndTime:   now.Add(120 * time.Millisecond),
				LatencyMS: 120,
				Status:    trace.SpanStatusOK,
			},
		},
		Execution: json.RawMessage(`{"events":[]}`),
		ElapsedMS: 120,
		CreatedAt: now,
	}
}

func TestBulkUpsertTraces(t *testing.T) {
	client := newTestClient(t)
	store := NewTraceStore(client)
	ctx := context.Background()

	entries := []*writer.TraceEntry{traceEntry("trace-a"), traceEntry("trace-b")}
	require.NoError(t, store.BulkUpsertTraces(ctx, entries))

	execution, err := store.GetTrace(ctx, "trace-a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"events":[]}`, string(execution))

	// Replaying the same batch must not fail or duplicate rows.
	entries[0].ElapsedMS = 250
	require.NoError(t, store.BulkUpsertTraces(ctx, entries))

	var count int
	err = client.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM traces`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var elapsed int64
	err = client.Pool().QueryRow(ctx,
		`SELECT elapsed_ms FROM traces WHERE trace_id = 'trace-a'`).Scan(&elapsed)
	require.NoError(t, err)
	assert.Equal(t, int64(250), elapsed)
}

func TestBulkUpsertTracesEmptyBatch(t *testing.T) {
	store := NewTraceStore(nil)
	require.NoError(t, store.BulkUpsertTraces(context.Background(), nil))
}

func queryLog(id, userID, query string) *writer.QueryLog {
	return &writer.QueryLog{
		ID:              id,
		SessionID:       "sess-1",
		UserID:          userID,
		Query:           query,
		NormalizedQuery: writer.NormalizeQuery(query),
		AgentKind:       models.AgentKindRAG,
		Intent:          models.IntentSearch,
		Success:         true,
		Steps:           2,
		LatencyMS:       340,
		CreatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestQueryLogLifecycle(t *testing.T) {
	client := newTestClient(t)
	store := NewQueryLogStore(client)
	ctx := context.Background()

	logs := []*writer.QueryLog{
		queryLog("q-1", "alice", "What is the SLA?"),
		queryLog("q-2", "bob", "what is the sla"),
		queryLog("q-3", "alice", "What is the SLA?"),
		queryLog("q-4", "carol", "How do I reset my password?"),
	}
	require.NoError(t, store.InsertQueryLogs(ctx, logs))
	require.NoError(t, store.UpsertQueryAggregates(ctx, logs))

	var frequency, uniqueUsers int64
	err := client.Pool().QueryRow(ctx, `
		SELECT frequency, unique_users FROM query_aggregates
		WHERE normalized_query = 'what is the sla'`).Scan(&frequency, &uniqueUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(3), frequency)
	assert.Equal(t, int64(2), uniqueUsers)

	// Only queries at or above the frequency floor reach the FAQ.
	require.NoError(t, store.SyncFAQ(ctx, 3))

	items, err := store.TopFAQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "what is the sla", items[0].NormalizedQuery)
	assert.Equal(t, int64(3), items[0].Frequency)

	// A later sync refreshes the stored frequency.
	more := []*writer.QueryLog{queryLog("q-5", "dave", "What is the SLA?")}
	require.NoError(t, store.InsertQueryLogs(ctx, more))
	require.NoError(t, store.UpsertQueryAggregates(ctx, more))
	require.NoError(t, store.SyncFAQ(ctx, 3))

	items, err = store.TopFAQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(4), items[0].Frequency)
}

func TestInsertQueryLogsIdempotent(t *testing.T) {
	client := newTestClient(t)
	store := NewQueryLogStore(client)
	ctx := context.Background()

	logs := []*writer.QueryLog{queryLog("q-1", "alice", "What is the SLA?")}
	require.NoError(t, store.InsertQueryLogs(ctx, logs))
	require.NoError(t, store.InsertQueryLogs(ctx, logs))

	var count int
	err := client.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM query_logs`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWritersAgainstStore(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	qw := writer.NewQueryLogWriter(NewQueryLogStore(client))
	qw.Start()
	qw.SubmitQuery(&writer.QueryLog{
		SessionID: "sess-1",
		UserID:    "alice",
		Query:     "Where are the runbooks?",
		AgentKind: models.AgentKindRAG,
		Success:   true,
	})
	qw.Stop(ctx)

	var count int
	err := client.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM query_logs`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	tw := writer.NewTraceWriter(NewTraceStore(client))
	tw.Start()
	tc := trace.NewContext("agent.request")
	et := trace.NewExecutionTrace(tc.TraceID, "sess-1")
	et.Close()
	tc.Finish(trace.SpanStatusOK, "")
	tw.SubmitTrace(tc, et)
	tw.Stop(ctx)

	err = client.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM traces`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRetentionDeletes(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	traces := NewTraceStore(client)
	old := traceEntry("trace-old")
	old.CreatedAt = time.Now().AddDate(0, 0, -40)
	recent := traceEntry("trace-recent")
	require.NoError(t, traces.BulkUpsertTraces(ctx, []*writer.TraceEntry{old, recent}))

	logs := NewQueryLogStore(client)
	oldLog := queryLog("q-old", "alice", "old question")
	oldLog.CreatedAt = time.Now().AddDate(0, 0, -100)
	require.NoError(t, logs.InsertQueryLogs(ctx, []*writer.QueryLog{oldLog, queryLog("q-new", "bob", "new question")}))

	retention := NewRetentionStore(client)
	deleted, err := retention.DeleteTracesBefore(ctx, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = retention.DeleteQueryLogsBefore(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int
	require.NoError(t, client.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM traces`).Scan(&count))
	assert.Equal(t, 1, count)
	// Spans cascade with their trace.
	require.NoError(t, client.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM spans`).Scan(&count))
	assert.Equal(t, 1, count)
}
