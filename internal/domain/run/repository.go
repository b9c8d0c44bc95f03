package run

import (
	"context"
	"time"
)

// Repository defines the interface for processing-run audit records
type Repository interface {
	// Create inserts a run row with status=running and returns its batch ID.
	Create(ctx context.Context, mode BatchMode, requested, actual int, version string, operator *string) (string, error)

	// UpdateActualSize records how many news items the fetch really returned.
	UpdateActualSize(ctx context.Context, batchID string, actual int) error

	// Complete stamps the run with a terminal (or refreshed running) status,
	// serialized metrics and final chunk count.
	Complete(ctx context.Context, batchID string, status Status, metrics Metrics, chunkCount int) error

	// GetByBatchID returns the run row for inspection.
	GetByBatchID(ctx context.Context, batchID string) (*ProcessingRun, error)

	// ListStale returns runs still marked running that started before the
	// cutoff. Callers treat these as crashed and restart or resume them.
	ListStale(ctx context.Context, olderThan time.Time) ([]*ProcessingRun, error)
}

// StatsSink receives derived per-run analytics (ClickHouse in production)
type StatsSink interface {
	InsertRunStats(ctx context.Context, stats *PerformanceMetrics) error
	InsertRunStatsBatch(ctx context.Context, stats []PerformanceMetrics) error
}
