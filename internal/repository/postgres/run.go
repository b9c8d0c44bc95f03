package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"tickerlink/internal/domain/run"
	"tickerlink/pkg/errors"
)

// Compile-time check
var _ run.Repository = (*RunRepository)(nil)

// RunRepository implements run.Repository using sqlx
type RunRepository struct {
	db DBTX
}

// NewRunRepository creates a new processing-run repository
func NewRunRepository(db DBTX) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `batch_id, mode, batch_size_requested, batch_size_actual,
	started_at, finished_at, status, metrics, operator, chunk_count, version, resume_token`

// Create inserts a run row with status=running and returns its batch ID
func (r *RunRepository) Create(ctx context.Context, mode run.BatchMode, requested, actual int, version string, operator *string) (string, error) {
	if !mode.Valid() {
		return "", errors.Wrapf(errors.ErrInvalidInput, "unknown batch mode %q", mode)
	}

	batchID := uuid.NewString()

	query := `
		INSERT INTO processing_runs (
			batch_id, mode, batch_size_requested, batch_size_actual,
			started_at, status, operator, version
		) VALUES ($1, $2, $3, $4, NOW(), $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		batchID, mode, requested, actual, run.StatusRunning, operator, version,
	)
	if err != nil {
		return "", err
	}

	return batchID, nil
}

// UpdateActualSize records how many news items the fetch really returned
func (r *RunRepository) UpdateActualSize(ctx context.Context, batchID string, actual int) error {
	query := `UPDATE processing_runs SET batch_size_actual = $2 WHERE batch_id = $1`

	result, err := r.db.ExecContext(ctx, query, batchID, actual)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrRunNotFound, "batch %s", batchID)
	}

	return nil
}

// Complete stamps the run with its final status, metrics and chunk count
func (r *RunRepository) Complete(ctx context.Context, batchID string, status run.Status, metrics run.Metrics, chunkCount int) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return errors.Wrap(err, "marshal run metrics")
	}

	query := `
		UPDATE processing_runs
		SET status = $2,
		    metrics = $3,
		    chunk_count = $4,
		    finished_at = CASE WHEN $2 = 'running' THEN finished_at ELSE NOW() END
		WHERE batch_id = $1`

	result, err := r.db.ExecContext(ctx, query, batchID, status, metricsJSON, chunkCount)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrRunNotFound, "batch %s", batchID)
	}

	return nil
}

// GetByBatchID returns the run row for inspection
func (r *RunRepository) GetByBatchID(ctx context.Context, batchID string) (*run.ProcessingRun, error) {
	var pr run.ProcessingRun

	query := `SELECT ` + runColumns + ` FROM processing_runs WHERE batch_id = $1`

	err := r.db.GetContext(ctx, &pr, query, batchID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrRunNotFound, "batch %s", batchID)
	}
	if err != nil {
		return nil, err
	}

	return &pr, nil
}

// ListStale returns runs still marked running that started before the cutoff
func (r *RunRepository) ListStale(ctx context.Context, olderThan time.Time) ([]*run.ProcessingRun, error) {
	var runs []*run.ProcessingRun

	query := `
		SELECT ` + runColumns + `
		FROM processing_runs
		WHERE status = 'running' AND started_at < $1
		ORDER BY started_at ASC`

	if err := r.db.SelectContext(ctx, &runs, query, olderThan); err != nil {
		return nil, err
	}

	return runs, nil
}
