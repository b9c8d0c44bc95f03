package news

import (
	"context"
	"time"

	"tickerlink/internal/domain/run"
)

// BatchRequest narrows a news fetch to a mode, size and optional filters.
// SelectedIDs, when present, further restricts the fetch regardless of mode.
type BatchRequest struct {
	Mode        run.BatchMode
	BatchSize   int
	RangeStart  *time.Time
	RangeEnd    *time.Time
	SelectedIDs []int64
}

// Repository defines the interface for news data access
type Repository interface {
	// FetchBatch pulls a batch of news per the request. ONLY_UNPROCESSED is
	// oldest-first over unprocessed rows; RECHECK_ALL is newest-first over
	// everything; RECHECK_SELECTED_RANGE bounds by publish/ingest timestamp.
	FetchBatch(ctx context.Context, req BatchRequest) ([]*Item, error)

	// MarkProcessed stamps the given news rows as processed by batchID/version.
	MarkProcessed(ctx context.Context, newsIDs []int64, batchID, version string) error

	// ResetProcessedFlags clears the processed flag so items become eligible
	// for ONLY_UNPROCESSED runs again.
	ResetProcessedFlags(ctx context.Context, newsIDs []int64) error
}
