package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/pkg/errors"
)

// Compile-time check
var _ news.Repository = (*NewsRepository)(nil)

// NewsRepository implements news.Repository using sqlx
type NewsRepository struct {
	db DBTX
}

// NewNewsRepository creates a new news repository
func NewNewsRepository(db DBTX) *NewsRepository {
	return &NewsRepository{db: db}
}

const newsColumns = `id, title, body, language, published_at, ingested_at, source,
	processed, processed_at, last_batch_id, last_processed_version`

// FetchBatch pulls a batch of news according to the requested mode. Ordering
// always uses COALESCE(published_at, ingested_at) so items without a publish
// timestamp still sort by their event time. SelectedIDs narrows the WHERE
// clause itself, so a selected row is found even when the mode ordering would
// place it past the batch limit.
func (r *NewsRepository) FetchBatch(ctx context.Context, req news.BatchRequest) ([]*news.Item, error) {
	var (
		where   []string
		orderBy string
		args    []interface{}
	)

	switch req.Mode {
	case run.ModeOnlyUnprocessed:
		where = append(where, "processed = FALSE")
		orderBy = "COALESCE(published_at, ingested_at) ASC"

	case run.ModeRecheckAll:
		orderBy = "COALESCE(published_at, ingested_at) DESC"

	case run.ModeRecheckSelectedRange:
		args = append(args, req.RangeStart)
		where = append(where, fmt.Sprintf(
			"($%d::timestamptz IS NULL OR COALESCE(published_at, ingested_at) >= $%d)", len(args), len(args)))
		args = append(args, req.RangeEnd)
		where = append(where, fmt.Sprintf(
			"($%d::timestamptz IS NULL OR COALESCE(published_at, ingested_at) <= $%d)", len(args), len(args)))
		orderBy = "COALESCE(published_at, ingested_at) DESC"

	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown batch mode %q", req.Mode)
	}

	if len(req.SelectedIDs) > 0 {
		args = append(args, pq.Array(req.SelectedIDs))
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}

	args = append(args, req.BatchSize)

	query := fmt.Sprintf("SELECT %s FROM news", newsColumns)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d", orderBy, len(args))

	var items []*news.Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}

	return items, nil
}

// MarkProcessed stamps news rows as handled by the given run
func (r *NewsRepository) MarkProcessed(ctx context.Context, newsIDs []int64, batchID, version string) error {
	if len(newsIDs) == 0 {
		return nil
	}

	query := `
		UPDATE news
		SET processed = TRUE,
		    processed_at = NOW(),
		    last_batch_id = $2,
		    last_processed_version = $3
		WHERE id = ANY($1)`

	_, err := r.db.ExecContext(ctx, query, pq.Array(newsIDs), batchID, version)
	return err
}

// ResetProcessedFlags makes news rows eligible for unprocessed runs again
func (r *NewsRepository) ResetProcessedFlags(ctx context.Context, newsIDs []int64) error {
	if len(newsIDs) == 0 {
		return nil
	}

	query := `
		UPDATE news
		SET processed = FALSE,
		    processed_at = NULL
		WHERE id = ANY($1)`

	_, err := r.db.ExecContext(ctx, query, pq.Array(newsIDs))
	return err
}
