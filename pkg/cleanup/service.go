// Package cleanup enforces data retention on persisted traces and
// query logs.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls what the cleanup loop deletes and how often
// it runs.
type RetentionConfig struct {
	TraceRetentionDays    int
	QueryLogRetentionDays int
	CleanupInterval       time.Duration
}

// DefaultRetentionConfig keeps traces for 30 days and raw query logs
// for 90; aggregates and FAQ entries are never deleted.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		TraceRetentionDays:    30,
		QueryLogRetentionDays: 90,
		CleanupInterval:       time.Hour,
	}
}

// RetentionStore deletes rows older than a cutoff. All operations are
// idempotent and safe to run from multiple replicas.
type RetentionStore interface {
	DeleteTracesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteQueryLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces the retention policy.
type Service struct {
	config RetentionConfig
	store  RetentionStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service.
func NewService(cfg RetentionConfig, store RetentionStore) *Service {
	return &Service{config: cfg, store: store}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"trace_retention_days", s.config.TraceRetentionDays,
		"query_log_retention_days", s.config.QueryLogRetentionDays,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce applies the retention policy a single time.
func (s *Service) RunOnce(ctx context.Context) {
	if s.config.TraceRetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.config.TraceRetentionDays)
		count, err := s.store.DeleteTracesBefore(ctx, cutoff)
		if err != nil {
			slog.Error("Retention: trace cleanup failed", "error", err)
		} else if count > 0 {
			slog.Info("Retention: deleted old traces", "count", count)
		}
	}

	if s.config.QueryLogRetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.config.QueryLogRetentionDays)
		count, err := s.store.DeleteQueryLogsBefore(ctx, cutoff)
		if err != nil {
			slog.Error("Retention: query log cleanup failed", "error", err)
		} else if count > 0 {
			slog.Info("Retention: deleted old query logs", "count", count)
		}
	}
}
