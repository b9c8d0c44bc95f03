package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/run"
	"tickerlink/pkg/errors"
)

// Compile-time check
var _ candidate.Repository = (*CandidateRepository)(nil)

// CandidateRepository implements candidate.Repository using sqlx.
//
// Upsert relies on the UNIQUE (news_id, ticker_id) constraint plus a guarded
// UPDATE instead of explicit locking, so concurrent runs converge on the best
// score without deadlocks.
type CandidateRepository struct {
	db DBTX
}

// NewCandidateRepository creates a new candidate repository
func NewCandidateRepository(db DBTX) *CandidateRepository {
	return &CandidateRepository{db: db}
}

type candidateRow struct {
	ID        int64      `db:"id"`
	NewsID    int64      `db:"news_id"`
	TickerID  int64      `db:"ticker_id"`
	Score     float64    `db:"score"`
	Method    string     `db:"method"`
	Confirmed int        `db:"confirmed"`
	UpdatedAt *time.Time `db:"updated_at"`
	History   []byte     `db:"history"`
}

func (row *candidateRow) toExisting() (*candidate.Existing, error) {
	existing := &candidate.Existing{
		ID:        row.ID,
		NewsID:    row.NewsID,
		TickerID:  row.TickerID,
		Score:     row.Score,
		Method:    row.Method,
		Confirmed: row.Confirmed,
		UpdatedAt: row.UpdatedAt,
	}

	if len(row.History) > 0 {
		if err := json.Unmarshal(row.History, &existing.History); err != nil {
			return nil, errors.Wrapf(err, "decode history for candidate %d", row.ID)
		}
	}

	return existing, nil
}

const existingColumns = `id, news_id, ticker_id, score, method, confirmed, updated_at, history`

// LoadExisting returns the stored candidates for a news item keyed by ticker ID
func (r *CandidateRepository) LoadExisting(ctx context.Context, newsID int64) (map[int64]*candidate.Existing, error) {
	var rows []candidateRow

	query := `
		SELECT ` + existingColumns + `
		FROM news_tickers
		WHERE news_id = $1`

	if err := r.db.SelectContext(ctx, &rows, query, newsID); err != nil {
		return nil, err
	}

	existing := make(map[int64]*candidate.Existing, len(rows))
	for i := range rows {
		e, err := rows[i].toExisting()
		if err != nil {
			return nil, err
		}
		existing[e.TickerID] = e
	}

	return existing, nil
}

// Upsert inserts a new candidate or improves an existing one. Confirmed rows
// are never overwritten unless cfg.AllowConfirmedOverwrite is set, and scores
// only move upward. Each applied write appends a history entry, trimmed to
// cfg.HistoryKeepMax.
func (r *CandidateRepository) Upsert(ctx context.Context, record *candidate.Record, cfg run.PipelineConfig) (*candidate.Comparison, error) {
	existing, err := r.getByPair(ctx, record.NewsID, record.TickerID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		inserted, err := r.tryInsert(ctx, record)
		if err != nil {
			return nil, err
		}
		if inserted {
			return &candidate.Comparison{
				NewsID:   record.NewsID,
				TickerID: record.TickerID,
				NewScore: record.Score,
				Updated:  true,
				Reason:   candidate.ReasonInserted,
			}, nil
		}

		// Lost the insert race; re-read and fall through to the update path.
		existing, err = r.getByPair(ctx, record.NewsID, record.TickerID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.Wrapf(errors.ErrInternal, "candidate (%d,%d) vanished during upsert", record.NewsID, record.TickerID)
		}
	}

	comparison := &candidate.Comparison{
		NewsID:        record.NewsID,
		TickerID:      record.TickerID,
		ExistingScore: existing.Score,
		NewScore:      record.Score,
	}

	if existing.Confirmed == candidate.ConfirmationConfirmed && !cfg.AllowConfirmedOverwrite {
		comparison.Reason = candidate.ReasonConfirmedLocked
		return comparison, nil
	}

	if record.Score <= existing.Score {
		comparison.Reason = candidate.ReasonScoreNotImproved
		return comparison, nil
	}

	prev := existing.Score
	history := append(existing.History, candidate.HistoryEntry{
		PrevScore: &prev,
		NewScore:  record.Score,
		Method:    record.Method,
		UpdatedAt: time.Now().UTC(),
	})
	if cfg.HistoryKeepMax > 0 && len(history) > cfg.HistoryKeepMax {
		history = history[len(history)-cfg.HistoryKeepMax:]
	}

	historyJSON, metadataJSON, err := marshalCandidateJSON(history, record.Metadata)
	if err != nil {
		return nil, err
	}

	// The score guard re-checks monotonicity inside the UPDATE itself, so a
	// concurrent improvement between our read and this write cannot be undone.
	query := `
		UPDATE news_tickers
		SET score = $2,
		    method = $3,
		    auto_suggest = $4,
		    metadata = $5,
		    batch_id = $6,
		    history = $7,
		    updated_at = NOW()
		WHERE id = $1 AND score < $2`

	result, err := r.db.ExecContext(ctx, query,
		existing.ID, record.Score, record.Method, record.AutoSuggest,
		metadataJSON, record.BatchID, historyJSON,
	)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		comparison.Reason = candidate.ReasonScoreNotImproved
		return comparison, nil
	}

	comparison.Updated = true
	comparison.Reason = candidate.ReasonScoreImproved
	return comparison, nil
}

func (r *CandidateRepository) getByPair(ctx context.Context, newsID, tickerID int64) (*candidate.Existing, error) {
	var row candidateRow

	query := `
		SELECT ` + existingColumns + `
		FROM news_tickers
		WHERE news_id = $1 AND ticker_id = $2`

	err := r.db.GetContext(ctx, &row, query, newsID, tickerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return row.toExisting()
}

func (r *CandidateRepository) tryInsert(ctx context.Context, record *candidate.Record) (bool, error) {
	history := []candidate.HistoryEntry{{
		NewScore:  record.Score,
		Method:    record.Method,
		UpdatedAt: time.Now().UTC(),
	}}

	historyJSON, metadataJSON, err := marshalCandidateJSON(history, record.Metadata)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO news_tickers (
			news_id, ticker_id, score, method, auto_suggest,
			metadata, batch_id, history, confirmed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
		ON CONFLICT (news_id, ticker_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		record.NewsID, record.TickerID, record.Score, record.Method,
		record.AutoSuggest, metadataJSON, record.BatchID, historyJSON,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

func marshalCandidateJSON(history []candidate.HistoryEntry, metadata map[string]map[string]string) ([]byte, []byte, error) {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal candidate history")
	}

	if metadata == nil {
		metadata = map[string]map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal candidate metadata")
	}

	return historyJSON, metadataJSON, nil
}

// UpdateConfirmation records an operator decision on a candidate
func (r *CandidateRepository) UpdateConfirmation(ctx context.Context, candidateID int64, confirmed int, operator *string) error {
	query := `
		UPDATE news_tickers
		SET confirmed = $2,
		    confirmed_by = $3,
		    confirmed_at = CASE WHEN $2 = 0 THEN NULL ELSE NOW() END,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, candidateID, confirmed, operator)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "candidate %d", candidateID)
	}

	return nil
}

type pendingRow struct {
	candidateRow
	TickerSymbol string     `db:"ticker_symbol"`
	TickerName   string     `db:"ticker_name"`
	NewsTitle    string     `db:"news_title"`
	PublishedAt  *time.Time `db:"published_at"`
}

// FetchPending lists candidates for operator review, best score first
func (r *CandidateRepository) FetchPending(ctx context.Context, filter candidate.PendingFilter) ([]*candidate.PendingCandidate, error) {
	query := `
		SELECT nt.id, nt.news_id, nt.ticker_id, nt.score, nt.method,
		       nt.confirmed, nt.updated_at, nt.history,
		       t.ticker AS ticker_symbol, t.name AS ticker_name,
		       n.title AS news_title, COALESCE(n.published_at, n.ingested_at) AS published_at
		FROM news_tickers nt
		JOIN tickers t ON t.id = nt.ticker_id
		JOIN news n ON n.id = nt.news_id
		WHERE ($1::double precision IS NULL OR nt.score >= $1)
		  AND (NOT $2 OR nt.confirmed = 0)
		ORDER BY nt.score DESC, nt.updated_at DESC
		LIMIT $3`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows []pendingRow
	if err := r.db.SelectContext(ctx, &rows, query, filter.MinScore, filter.OnlyUnconfirmed, limit); err != nil {
		return nil, err
	}

	pending := make([]*candidate.PendingCandidate, 0, len(rows))
	for i := range rows {
		existing, err := rows[i].toExisting()
		if err != nil {
			return nil, err
		}
		pending = append(pending, &candidate.PendingCandidate{
			Existing:     *existing,
			TickerSymbol: rows[i].TickerSymbol,
			TickerName:   rows[i].TickerName,
			NewsTitle:    rows[i].NewsTitle,
			PublishedAt:  rows[i].PublishedAt,
		})
	}

	return pending, nil
}
