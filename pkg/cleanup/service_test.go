package cleanup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRetentionStore struct {
	mu              sync.Mutex
	traceCutoffs    []time.Time
	queryLogCutoffs []time.Time
	traceErr        error
}

func (f *fakeRetentionStore) DeleteTracesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traceCutoffs = append(f.traceCutoffs, cutoff)
	return 3, f.traceErr
}

func (f *fakeRetentionStore) DeleteQueryLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryLogCutoffs = append(f.queryLogCutoffs, cutoff)
	return 0, nil
}

func TestRunOnceUsesConfiguredRetention(t *testing.T) {
	store := &fakeRetentionStore{}
	svc := NewService(RetentionConfig{
		TraceRetentionDays:    30,
		QueryLogRetentionDays: 90,
		CleanupInterval:       time.Hour,
	}, store)

	svc.RunOnce(context.Background())

	require.Len(t, store.traceCutoffs, 1)
	require.Len(t, store.queryLogCutoffs, 1)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -30), store.traceCutoffs[0], time.Minute)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -90), store.queryLogCutoffs[0], time.Minute)
}

func TestRunOnceSkipsDisabledPolicies(t *testing.T) {
	store := &fakeRetentionStore{}
	svc := NewService(RetentionConfig{QueryLogRetentionDays: 90}, store)

	svc.RunOnce(context.Background())

	assert.Empty(t, store.traceCutoffs)
	assert.Len(t, store.queryLogCutoffs, 1)
}

func TestRunOnceContinuesPastErrors(t *testing.T) {
	store := &fakeRetentionStore{traceErr: errors.New("db unavailable")}
	svc := NewService(DefaultRetentionConfig(), store)

	svc.RunOnce(context.Background())

	// The query-log pass still runs after the trace pass fails.
	assert.Len(t, store.queryLogCutoffs, 1)
}

func TestStartStop(t *testing.T) {
	store := &fakeRetentionStore{}
	svc := NewService(RetentionConfig{
		TraceRetentionDays:    1,
		QueryLogRetentionDays: 1,
		CleanupInterval:       10 * time.Millisecond,
	}, store)

	svc.Start(context.Background())
	time.Sleep(35 * time.Millisecond)
	svc.Stop()

	store.mu.Lock()
	runs := len(store.traceCutoffs)
	store.mu.Unlock()
	// Immediate run plus at least one tick.
	assert.GreaterOrEqual(t, runs, 2)
}
