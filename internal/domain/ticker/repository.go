package ticker

import "context"

// Repository defines the interface for instrument reference data access
type Repository interface {
	// LoadAll returns the full instrument catalogue including any cached
	// embedding vectors.
	LoadAll(ctx context.Context) ([]*Record, error)

	// StoreEmbedding persists a freshly computed embedding for an instrument
	// (write-through cache). The model name records which backend produced
	// the vector so stale vectors can be detected after a model change.
	StoreEmbedding(ctx context.Context, tickerID int64, vector []float32, model string) error

	// SearchSimilar returns the top-K instruments by embedding similarity to
	// the query vector, with cosine similarity per hit. Backed by an ANN
	// index for large universes.
	SearchSimilar(ctx context.Context, vector []float32, limit int) ([]SimilarityHit, error)
}

// SimilarityHit is one approximate-nearest-neighbour result
type SimilarityHit struct {
	TickerID   int64   `db:"ticker_id"`
	Similarity float64 `db:"similarity"`
}
