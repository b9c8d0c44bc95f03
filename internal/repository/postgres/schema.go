package postgres

import (
	"context"

	"tickerlink/pkg/errors"
)

// schemaStatements are applied in order by EnsureSchema. Every statement is
// idempotent, so repeated calls (one per worker start) are safe.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS news (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'ru',
		published_at TIMESTAMPTZ,
		ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		source TEXT NOT NULL DEFAULT '',
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		processed_at TIMESTAMPTZ,
		last_batch_id TEXT,
		last_processed_version TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_news_processed ON news (processed)`,
	`CREATE INDEX IF NOT EXISTS idx_news_event_time ON news (COALESCE(published_at, ingested_at))`,

	`CREATE TABLE IF NOT EXISTS tickers (
		id BIGSERIAL PRIMARY KEY,
		ticker TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		aliases JSONB NOT NULL DEFAULT '[]',
		isin TEXT NOT NULL DEFAULT '',
		exchange TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		embedding vector,
		embedding_model TEXT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS news_tickers (
		id BIGSERIAL PRIMARY KEY,
		news_id BIGINT NOT NULL REFERENCES news(id) ON DELETE CASCADE,
		ticker_id BIGINT NOT NULL REFERENCES tickers(id) ON DELETE CASCADE,
		score DOUBLE PRECISION NOT NULL,
		method TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		confirmed SMALLINT NOT NULL DEFAULT 0,
		confirmed_by TEXT,
		confirmed_at TIMESTAMPTZ,
		batch_id TEXT,
		auto_suggest BOOLEAN NOT NULL DEFAULT FALSE,
		history JSONB NOT NULL DEFAULT '[]',
		metadata JSONB NOT NULL DEFAULT '{}',
		UNIQUE (news_id, ticker_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_news_tickers_news ON news_tickers (news_id)`,
	`CREATE INDEX IF NOT EXISTS idx_news_tickers_confirmed ON news_tickers (confirmed)`,

	`CREATE TABLE IF NOT EXISTS processing_runs (
		batch_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		batch_size_requested INTEGER NOT NULL DEFAULT 0,
		batch_size_actual INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'running',
		metrics JSONB,
		operator TEXT,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		version TEXT NOT NULL DEFAULT '',
		resume_token TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_processing_runs_status ON processing_runs (status, started_at)`,
}

// EnsureSchema creates the pipeline tables and indexes if absent
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "schema statement failed")
		}
	}
	return nil
}
