package candidate

import (
	"context"
	"time"

	"tickerlink/internal/domain/run"
)

// PendingFilter narrows the operator review listing
type PendingFilter struct {
	MinScore        *float64
	OnlyUnconfirmed bool
	Limit           int
}

// PendingCandidate is one row of the operator review listing, joined with
// instrument and article context.
type PendingCandidate struct {
	Existing
	TickerSymbol string
	TickerName   string
	NewsTitle    string
	PublishedAt  *time.Time
}

// Repository defines the interface for candidate persistence
type Repository interface {
	// LoadExisting returns the stored candidates for a news item, keyed by
	// ticker ID.
	LoadExisting(ctx context.Context, newsID int64) (map[int64]*Existing, error)

	// Upsert inserts or improves a candidate under the score-monotonicity and
	// confirmed-lock rules. Uniqueness of (news_id, ticker_id) is enforced by
	// the storage layer, so concurrent runs stay correct without extra locks.
	Upsert(ctx context.Context, record *Record, cfg run.PipelineConfig) (*Comparison, error)

	// UpdateConfirmation records an operator decision on a candidate.
	UpdateConfirmation(ctx context.Context, candidateID int64, confirmed int, operator *string) error

	// FetchPending lists candidates for operator review, best score first.
	FetchPending(ctx context.Context, filter PendingFilter) ([]*PendingCandidate, error)
}
