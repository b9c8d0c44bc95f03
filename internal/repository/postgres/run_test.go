package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerlink/internal/domain/run"
	"tickerlink/pkg/errors"
)

func TestRunRepository_Lifecycle(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	repo := NewRunRepository(tx)

	operator := "scheduler"
	batchID, err := repo.Create(ctx, run.ModeOnlyUnprocessed, 100, 0, "v1", &operator)
	require.NoError(t, err)
	require.NotEmpty(t, batchID)

	require.NoError(t, repo.UpdateActualSize(ctx, batchID, 37))

	metrics := run.Metrics{
		TotalNews:           37,
		ProcessedNews:       37,
		CandidatesGenerated: 12,
		DurationSeconds:     4.2,
	}
	require.NoError(t, repo.Complete(ctx, batchID, run.StatusCompleted, metrics, 2))

	row, err := repo.GetByBatchID(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, run.ModeOnlyUnprocessed, row.Mode)
	assert.Equal(t, 100, row.BatchSizeRequested)
	assert.Equal(t, 37, row.BatchSizeActual)
	assert.Equal(t, run.StatusCompleted, row.Status)
	assert.Equal(t, 2, row.ChunkCount)
	require.NotNil(t, row.Operator)
	assert.Equal(t, "scheduler", *row.Operator)
	assert.NotNil(t, row.FinishedAt)

	parsed, err := row.ParseMetrics()
	require.NoError(t, err)
	assert.Equal(t, 37, parsed.ProcessedNews)
	assert.Equal(t, 12, parsed.CandidatesGenerated)
}

func TestRunRepository_CreateRejectsUnknownMode(t *testing.T) {
	tx := newTestTx(t)

	_, err := NewRunRepository(tx).Create(context.Background(), "everything", 10, 0, "v1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestRunRepository_MissingRun(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	repo := NewRunRepository(tx)

	_, err := repo.GetByBatchID(ctx, "no-such-batch")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRunNotFound))

	err = repo.Complete(ctx, "no-such-batch", run.StatusFailed, run.Metrics{}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRunNotFound))

	err = repo.UpdateActualSize(ctx, "no-such-batch", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRunNotFound))
}

func TestRunRepository_ListStale(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	repo := NewRunRepository(tx)

	staleID, err := repo.Create(ctx, run.ModeOnlyUnprocessed, 10, 0, "v1", nil)
	require.NoError(t, err)
	finishedID, err := repo.Create(ctx, run.ModeOnlyUnprocessed, 10, 0, "v1", nil)
	require.NoError(t, err)
	require.NoError(t, repo.Complete(ctx, finishedID, run.StatusCompleted, run.Metrics{}, 0))

	stale, err := repo.ListStale(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, staleID, stale[0].BatchID)
	assert.Equal(t, run.StatusRunning, stale[0].Status)

	// Cutoff in the past finds nothing
	stale, err = repo.ListStale(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}
