package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tickerlink/internal/testsupport"
)

// newTestTx opens a transactional connection against the integration
// database and applies the schema inside it. Everything rolls back on
// cleanup, so tests never leak rows.
func newTestTx(t *testing.T) DBTX {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testsupport.LoadPostgresConfigFromEnv(t)
	helper := testsupport.NewPostgresTestHelper(t, cfg)
	tx := helper.Tx()

	require.NoError(t, EnsureSchema(context.Background(), tx))
	return tx
}

func insertTicker(t *testing.T, db DBTX, symbol, name string) int64 {
	t.Helper()

	var id int64
	err := db.GetContext(context.Background(), &id, `
		INSERT INTO tickers (ticker, name, aliases)
		VALUES ($1, $2, '[]')
		RETURNING id`, symbol, name)
	require.NoError(t, err)
	return id
}

func insertNews(t *testing.T, db DBTX, title string, publishedAt time.Time, processed bool) int64 {
	t.Helper()

	var id int64
	err := db.GetContext(context.Background(), &id, `
		INSERT INTO news (title, body, published_at, processed)
		VALUES ($1, '', $2, $3)
		RETURNING id`, title, publishedAt, processed)
	require.NoError(t, err)
	return id
}
