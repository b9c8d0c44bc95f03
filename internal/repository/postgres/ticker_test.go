package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerlink/pkg/errors"
)

func TestTickerRepository_LoadAll(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO tickers (ticker, name, aliases, isin)
		VALUES ('SBER', 'Sberbank', '["Сбербанк", "Sber"]', 'RU0009029540'),
		       ('GAZP', 'Gazprom', '[]', '')`)
	require.NoError(t, err)

	records, err := NewTickerRepository(tx).LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Ordered by symbol
	assert.Equal(t, "GAZP", records[0].Ticker)
	assert.Equal(t, "SBER", records[1].Ticker)

	sber := records[1]
	assert.Equal(t, []string{"Сбербанк", "Sber"}, sber.Aliases)
	assert.Equal(t, "RU0009029540", sber.ISIN)
	assert.Empty(t, sber.EmbedVector)
	assert.Equal(t, []string{"SBER", "Sberbank", "Сбербанк", "Sber"}, sber.AllNames())
}

func TestTickerRepository_StoreEmbeddingRoundTrip(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	repo := NewTickerRepository(tx)

	id := insertTicker(t, tx, "SBER", "Sberbank")

	vector := []float32{0.1, 0.2, 0.3}
	require.NoError(t, repo.StoreEmbedding(ctx, id, vector, "text-embedding-3-small"))

	records, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDeltaSlice(t, vector, records[0].EmbedVector, 1e-6)

	err = repo.StoreEmbedding(ctx, 999999, vector, "text-embedding-3-small")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestTickerRepository_SearchSimilar(t *testing.T) {
	tx := newTestTx(t)
	ctx := context.Background()
	repo := NewTickerRepository(tx)

	closeID := insertTicker(t, tx, "AAA", "close match")
	farID := insertTicker(t, tx, "BBB", "far match")
	insertTicker(t, tx, "CCC", "no embedding")

	require.NoError(t, repo.StoreEmbedding(ctx, closeID, []float32{1, 0, 0}, "m"))
	require.NoError(t, repo.StoreEmbedding(ctx, farID, []float32{0, 1, 0}, "m"))

	hits, err := repo.SearchSimilar(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)

	// Rows without embeddings are skipped, nearest first
	require.Len(t, hits, 2)
	assert.Equal(t, closeID, hits[0].TickerID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, farID, hits[1].TickerID)
	assert.Less(t, hits[1].Similarity, 0.5)
}
