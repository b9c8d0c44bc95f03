package generator

import (
	"context"
	"strconv"

	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
	"tickerlink/pkg/errors"
	"tickerlink/pkg/logger"
)

// Compile-time checks
var (
	_ Generator      = (*Embedding)(nil)
	_ BatchGenerator = (*Embedding)(nil)
)

// annTopK bounds the vector-index search when UseANN is set. Anything past
// the top hits is below the candidate threshold in practice.
const annTopK = 50

// EmbeddingSource owns the ticker embedding matrix and the text encoder.
// Constructed once per pipeline and shared; the generator only consumes it.
type EmbeddingSource interface {
	// EnsureTickerMatrix loads or computes embeddings for the given tickers.
	EnsureTickerMatrix(ctx context.Context, tickers []*ticker.Record, cfg run.PipelineConfig) error

	// EncodeText returns the embedding vector for one text.
	EncodeText(ctx context.Context, text string) ([]float32, error)

	// EncodeTexts returns index-aligned embedding vectors for a chunk of texts.
	EncodeTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Similarities returns cosine similarity of the vector against every
	// ticker in the prepared matrix.
	Similarities(vector []float32) []ticker.SimilarityHit

	// SearchSimilar queries the vector index instead of the in-memory matrix.
	SearchSimilar(ctx context.Context, vector []float32, limit int) ([]ticker.SimilarityHit, error)
}

// Embedding scores tickers by cosine similarity between the news text
// embedding and precomputed per-ticker profile embeddings.
type Embedding struct {
	weight float64
	source EmbeddingSource
}

// NewEmbedding creates an embedding generator
func NewEmbedding(weight float64, source EmbeddingSource) *Embedding {
	return &Embedding{weight: weight, source: source}
}

// Name returns the method tag
func (g *Embedding) Name() string { return MethodEmbedding }

// Weight returns the strategy weight
func (g *Embedding) Weight() float64 { return g.weight }

// Prepare loads or computes the ticker embedding matrix
func (g *Embedding) Prepare(ctx context.Context, tickers []*ticker.Record, cfg run.PipelineConfig) error {
	return g.source.EnsureTickerMatrix(ctx, tickers, cfg)
}

// Generate encodes the news text and emits a signal for every ticker whose
// similarity clears the candidate threshold
func (g *Embedding) Generate(ctx context.Context, item *news.Item, _ []*ticker.Record, cfg run.PipelineConfig) (map[int64]candidate.Signal, error) {
	vector, err := g.source.EncodeText(ctx, item.Text())
	if err != nil {
		return nil, err
	}

	hits, err := g.lookup(ctx, vector, cfg)
	if err != nil {
		return nil, err
	}

	return g.signalsFromHits(hits, cfg), nil
}

// BatchGenerate encodes the whole chunk in one backend call and scores each
// item against the shared matrix
func (g *Embedding) BatchGenerate(ctx context.Context, items []*news.Item, _ []*ticker.Record, cfg run.PipelineConfig) ([]map[int64]candidate.Signal, error) {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text()
	}

	vectors, err := g.source.EncodeTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(items) {
		logger.Get().With("component", "embedding_generator").
			Warnw("Encoder returned unexpected vector count", "want", len(items), "got", len(vectors))
		return nil, errors.Wrapf(errors.ErrInternal, "encoder returned %d vectors for %d texts", len(vectors), len(items))
	}

	results := make([]map[int64]candidate.Signal, len(items))
	for i, vector := range vectors {
		hits, err := g.lookup(ctx, vector, cfg)
		if err != nil {
			return nil, err
		}
		results[i] = g.signalsFromHits(hits, cfg)
	}

	return results, nil
}

func (g *Embedding) lookup(ctx context.Context, vector []float32, cfg run.PipelineConfig) ([]ticker.SimilarityHit, error) {
	if cfg.UseANN {
		return g.source.SearchSimilar(ctx, vector, annTopK)
	}
	return g.source.Similarities(vector), nil
}

func (g *Embedding) signalsFromHits(hits []ticker.SimilarityHit, cfg run.PipelineConfig) map[int64]candidate.Signal {
	signals := make(map[int64]candidate.Signal)
	for _, hit := range hits {
		if hit.Similarity < cfg.CosCandidateThreshold {
			continue
		}
		autoApply := hit.Similarity >= cfg.CosAutoThreshold
		signals[hit.TickerID] = candidate.Signal{
			Score:  hit.Similarity * g.weight,
			Method: g.Name(),
			Metadata: map[string]string{
				"similarity": strconv.FormatFloat(hit.Similarity, 'f', 6, 64),
				"auto_apply": strconv.FormatBool(autoApply),
			},
		}
	}
	return signals
}
