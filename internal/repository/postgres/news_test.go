package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
)

func TestNewsRepository_FetchBatchModes(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	repo := NewNewsRepository(tx)

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	oldID := insertNews(t, tx, "old unprocessed", base, false)
	midID := insertNews(t, tx, "mid processed", base.Add(24*time.Hour), true)
	newID := insertNews(t, tx, "new unprocessed", base.Add(48*time.Hour), false)

	// Unprocessed mode: oldest first, processed rows invisible
	items, err := repo.FetchBatch(ctx, news.BatchRequest{Mode: run.ModeOnlyUnprocessed, BatchSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, oldID, items[0].ID)
	assert.Equal(t, newID, items[1].ID)

	// Recheck all: newest first, everything visible
	items, err = repo.FetchBatch(ctx, news.BatchRequest{Mode: run.ModeRecheckAll, BatchSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, newID, items[0].ID)
	assert.Equal(t, oldID, items[2].ID)

	// Range mode bounds by event time
	start := base.Add(12 * time.Hour)
	end := base.Add(36 * time.Hour)
	items, err = repo.FetchBatch(ctx, news.BatchRequest{
		Mode:       run.ModeRecheckSelectedRange,
		BatchSize:  10,
		RangeStart: &start,
		RangeEnd:   &end,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, midID, items[0].ID)

	// Open-ended range falls back to everything
	items, err = repo.FetchBatch(ctx, news.BatchRequest{Mode: run.ModeRecheckSelectedRange, BatchSize: 10})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestNewsRepository_FetchBatchSelectedIDs(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	repo := NewNewsRepository(tx)

	base := time.Now().UTC()
	wantID := insertNews(t, tx, "wanted", base, false)
	insertNews(t, tx, "other", base.Add(time.Minute), false)

	items, err := repo.FetchBatch(ctx, news.BatchRequest{
		Mode:        run.ModeRecheckAll,
		BatchSize:   10,
		SelectedIDs: []int64{wantID},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, wantID, items[0].ID)
}

func TestNewsRepository_FetchBatchSelectedIDsBeyondBatchLimit(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	repo := NewNewsRepository(tx)

	// Recheck-all orders newest first, so an old selected row sits behind
	// every newer one. The ID restriction must apply before the limit or the
	// row would never be fetched.
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	oldID := insertNews(t, tx, "buried selection", base, false)
	var newestID int64
	for i := 1; i <= 5; i++ {
		newestID = insertNews(t, tx, "newer filler", base.Add(time.Duration(i)*time.Hour), false)
	}

	items, err := repo.FetchBatch(ctx, news.BatchRequest{
		Mode:        run.ModeRecheckAll,
		BatchSize:   3,
		SelectedIDs: []int64{oldID},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, oldID, items[0].ID)

	// Unprocessed mode orders oldest first, so there the buried selection is
	// the newest row
	items, err = repo.FetchBatch(ctx, news.BatchRequest{
		Mode:        run.ModeOnlyUnprocessed,
		BatchSize:   3,
		SelectedIDs: []int64{newestID},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, newestID, items[0].ID)
}

func TestNewsRepository_FetchBatchUnknownMode(t *testing.T) {
	tx := newTestTx(t)

	_, err := NewNewsRepository(tx).FetchBatch(context.Background(), news.BatchRequest{Mode: "everything"})
	require.Error(t, err)
}

func TestNewsRepository_MarkAndResetProcessed(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	repo := NewNewsRepository(tx)

	id := insertNews(t, tx, "flip me", time.Now().UTC(), false)

	require.NoError(t, repo.MarkProcessed(ctx, []int64{id}, "batch-42", "v1"))

	items, err := repo.FetchBatch(ctx, news.BatchRequest{Mode: run.ModeRecheckAll, BatchSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Processed)
	assert.NotNil(t, items[0].ProcessedAt)
	require.NotNil(t, items[0].LastBatchID)
	assert.Equal(t, "batch-42", *items[0].LastBatchID)
	require.NotNil(t, items[0].LastProcessedVersion)
	assert.Equal(t, "v1", *items[0].LastProcessedVersion)

	require.NoError(t, repo.ResetProcessedFlags(ctx, []int64{id}))

	items, err = repo.FetchBatch(ctx, news.BatchRequest{Mode: run.ModeOnlyUnprocessed, BatchSize: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Processed)
	assert.Nil(t, items[0].ProcessedAt)

	// Empty ID slices are no-ops
	require.NoError(t, repo.MarkProcessed(ctx, nil, "batch-43", "v1"))
	require.NoError(t, repo.ResetProcessedFlags(ctx, nil))
}
