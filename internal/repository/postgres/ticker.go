package postgres

import (
	"context"
	"encoding/json"

	"github.com/pgvector/pgvector-go"

	"tickerlink/internal/domain/ticker"
	"tickerlink/pkg/errors"
)

// Compile-time check
var _ ticker.Repository = (*TickerRepository)(nil)

// TickerRepository implements ticker.Repository using sqlx and pgvector
type TickerRepository struct {
	db DBTX
}

// NewTickerRepository creates a new ticker repository
func NewTickerRepository(db DBTX) *TickerRepository {
	return &TickerRepository{db: db}
}

type tickerRow struct {
	ID          int64            `db:"id"`
	Ticker      string           `db:"ticker"`
	Name        string           `db:"name"`
	Aliases     []byte           `db:"aliases"`
	ISIN        string           `db:"isin"`
	Exchange    string           `db:"exchange"`
	Description string           `db:"description"`
	Embedding   *pgvector.Vector `db:"embedding"`
}

func (row *tickerRow) toRecord() (*ticker.Record, error) {
	rec := &ticker.Record{
		ID:          row.ID,
		Ticker:      row.Ticker,
		Name:        row.Name,
		ISIN:        row.ISIN,
		Exchange:    row.Exchange,
		Description: row.Description,
	}

	if len(row.Aliases) > 0 {
		if err := json.Unmarshal(row.Aliases, &rec.Aliases); err != nil {
			return nil, errors.Wrapf(err, "decode aliases for ticker %d", row.ID)
		}
	}
	if row.Embedding != nil {
		rec.EmbedVector = row.Embedding.Slice()
	}

	return rec, nil
}

// LoadAll returns the full reference universe ordered by symbol
func (r *TickerRepository) LoadAll(ctx context.Context) ([]*ticker.Record, error) {
	var rows []tickerRow

	query := `
		SELECT id, ticker, name, aliases, isin, exchange, description, embedding
		FROM tickers
		ORDER BY ticker`

	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	records := make([]*ticker.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// StoreEmbedding persists a ticker profile vector for reuse across runs
func (r *TickerRepository) StoreEmbedding(ctx context.Context, tickerID int64, vector []float32, model string) error {
	query := `
		UPDATE tickers
		SET embedding = $2, embedding_model = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, tickerID, pgvector.NewVector(vector), model)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "ticker %d", tickerID)
	}

	return nil
}

// SearchSimilar performs approximate nearest-neighbor search with pgvector
// cosine distance. Tickers without a stored embedding are skipped.
func (r *TickerRepository) SearchSimilar(ctx context.Context, vector []float32, limit int) ([]ticker.SimilarityHit, error) {
	var hits []ticker.SimilarityHit

	query := `
		SELECT id AS ticker_id, 1 - (embedding <=> $1) AS similarity
		FROM tickers
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &hits, query, pgvector.NewVector(vector), limit); err != nil {
		return nil, err
	}

	return hits, nil
}
