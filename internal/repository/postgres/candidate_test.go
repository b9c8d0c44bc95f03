package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/run"
)

func candidateRecord(newsID, tickerID int64, score float64) *candidate.Record {
	return &candidate.Record{
		NewsID:   newsID,
		TickerID: tickerID,
		Score:    score,
		Method:   "substring",
		Metadata: map[string]map[string]string{
			"substring": {"alias": "sberbank"},
		},
		BatchID: "batch-test",
	}
}

func TestCandidateRepository_UpsertLifecycle(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	newsID := insertNews(t, tx, "Sberbank reports record profit", time.Now().UTC(), false)
	tickerID := insertTicker(t, tx, "SBER", "Sberbank")

	repo := NewCandidateRepository(tx)
	cfg := run.DefaultPipelineConfig()

	// Insert
	cmp, err := repo.Upsert(ctx, candidateRecord(newsID, tickerID, 0.7), cfg)
	require.NoError(t, err)
	assert.True(t, cmp.Updated)
	assert.Equal(t, candidate.ReasonInserted, cmp.Reason)

	// Improve
	cmp, err = repo.Upsert(ctx, candidateRecord(newsID, tickerID, 0.85), cfg)
	require.NoError(t, err)
	assert.True(t, cmp.Updated)
	assert.Equal(t, candidate.ReasonScoreImproved, cmp.Reason)
	assert.Equal(t, 0.7, cmp.ExistingScore)

	// Equal and lower scores do not move the row
	for _, score := range []float64{0.85, 0.5} {
		cmp, err = repo.Upsert(ctx, candidateRecord(newsID, tickerID, score), cfg)
		require.NoError(t, err)
		assert.False(t, cmp.Updated)
		assert.Equal(t, candidate.ReasonScoreNotImproved, cmp.Reason)
	}

	existing, err := repo.LoadExisting(ctx, newsID)
	require.NoError(t, err)
	require.Contains(t, existing, tickerID)
	assert.Equal(t, 0.85, existing[tickerID].Score)

	// One insert entry plus one improvement entry
	history := existing[tickerID].History
	require.Len(t, history, 2)
	assert.Nil(t, history[0].PrevScore)
	assert.Equal(t, 0.7, history[0].NewScore)
	require.NotNil(t, history[1].PrevScore)
	assert.Equal(t, 0.7, *history[1].PrevScore)
	assert.Equal(t, 0.85, history[1].NewScore)
}

func TestCandidateRepository_HistoryTrimmedToKeepMax(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	newsID := insertNews(t, tx, "history test", time.Now().UTC(), false)
	tickerID := insertTicker(t, tx, "GAZP", "Gazprom")

	repo := NewCandidateRepository(tx)
	cfg := run.DefaultPipelineConfig()
	cfg.HistoryKeepMax = 3

	for _, score := range []float64{0.5, 0.6, 0.7, 0.8, 0.9} {
		_, err := repo.Upsert(ctx, candidateRecord(newsID, tickerID, score), cfg)
		require.NoError(t, err)
	}

	existing, err := repo.LoadExisting(ctx, newsID)
	require.NoError(t, err)
	require.Contains(t, existing, tickerID)

	history := existing[tickerID].History
	require.Len(t, history, 3)
	assert.Equal(t, 0.9, history[2].NewScore)
	require.NotNil(t, history[0].PrevScore)
	assert.Equal(t, 0.6, *history[0].PrevScore)
}

func TestCandidateRepository_ConfirmedRowIsLocked(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	newsID := insertNews(t, tx, "confirmation test", time.Now().UTC(), false)
	tickerID := insertTicker(t, tx, "LKOH", "Lukoil")

	repo := NewCandidateRepository(tx)
	cfg := run.DefaultPipelineConfig()

	_, err := repo.Upsert(ctx, candidateRecord(newsID, tickerID, 0.7), cfg)
	require.NoError(t, err)

	existing, err := repo.LoadExisting(ctx, newsID)
	require.NoError(t, err)
	candidateID := existing[tickerID].ID

	operator := "analyst"
	require.NoError(t, repo.UpdateConfirmation(ctx, candidateID, candidate.ConfirmationConfirmed, &operator))

	cmp, err := repo.Upsert(ctx, candidateRecord(newsID, tickerID, 0.95), cfg)
	require.NoError(t, err)
	assert.False(t, cmp.Updated)
	assert.Equal(t, candidate.ReasonConfirmedLocked, cmp.Reason)

	// Overwrite flag lifts the lock
	cfg.AllowConfirmedOverwrite = true
	cmp, err = repo.Upsert(ctx, candidateRecord(newsID, tickerID, 0.95), cfg)
	require.NoError(t, err)
	assert.True(t, cmp.Updated)

	// Reopening clears the decision timestamp
	require.NoError(t, repo.UpdateConfirmation(ctx, candidateID, candidate.ConfirmationPending, nil))
	existing, err = repo.LoadExisting(ctx, newsID)
	require.NoError(t, err)
	assert.Equal(t, candidate.ConfirmationPending, existing[tickerID].Confirmed)
}

func TestCandidateRepository_UpdateConfirmationMissingRow(t *testing.T) {
	tx := newTestTx(t)

	repo := NewCandidateRepository(tx)
	err := repo.UpdateConfirmation(context.Background(), 999999, candidate.ConfirmationRejected, nil)
	require.Error(t, err)
}

func TestCandidateRepository_FetchPending(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	newsID := insertNews(t, tx, "pending review", time.Now().UTC(), false)
	highID := insertTicker(t, tx, "SBER", "Sberbank")
	lowID := insertTicker(t, tx, "GAZP", "Gazprom")
	confirmedID := insertTicker(t, tx, "LKOH", "Lukoil")

	repo := NewCandidateRepository(tx)
	cfg := run.DefaultPipelineConfig()

	_, err := repo.Upsert(ctx, candidateRecord(newsID, highID, 0.9), cfg)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, candidateRecord(newsID, lowID, 0.62), cfg)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, candidateRecord(newsID, confirmedID, 0.8), cfg)
	require.NoError(t, err)

	existing, err := repo.LoadExisting(ctx, newsID)
	require.NoError(t, err)
	operator := "analyst"
	require.NoError(t, repo.UpdateConfirmation(ctx, existing[confirmedID].ID, candidate.ConfirmationConfirmed, &operator))

	minScore := 0.7
	pending, err := repo.FetchPending(ctx, candidate.PendingFilter{
		MinScore:        &minScore,
		OnlyUnconfirmed: true,
	})
	require.NoError(t, err)

	require.Len(t, pending, 1)
	assert.Equal(t, highID, pending[0].TickerID)
	assert.Equal(t, "SBER", pending[0].TickerSymbol)
	assert.Equal(t, "pending review", pending[0].NewsTitle)

	// Without filters, best score first
	pending, err = repo.FetchPending(ctx, candidate.PendingFilter{})
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, highID, pending[0].TickerID)
	assert.Equal(t, lowID, pending[2].TickerID)
}
