package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tickerlink/internal/adapters/embeddings"
	"tickerlink/internal/adapters/redis"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
	"tickerlink/internal/metrics"
	"tickerlink/internal/pipeline/generator"
	"tickerlink/pkg/errors"
	"tickerlink/pkg/logger"
	"tickerlink/pkg/retry"
)

// Compile-time check
var _ generator.EmbeddingSource = (*EmbeddingService)(nil)

const embedCacheTTL = 24 * time.Hour

// EmbeddingService owns the per-ticker embedding matrix and mediates every
// call to the embedding backend: rate limiting, retry with backoff, a Redis
// cache for news-text vectors, and write-through persistence of ticker
// vectors.
type EmbeddingService struct {
	provider embeddings.Provider
	tickers  ticker.Repository
	cache    *redis.Client
	limiter  *rate.Limiter
	retrier  *retry.Retrier

	mu        sync.RWMutex
	tickerIDs []int64
	matrix    [][]float32
}

// NewEmbeddingService creates the service. cache may be nil (no news-text
// caching); tickers may be nil (no write-through, no ANN path).
func NewEmbeddingService(
	provider embeddings.Provider,
	tickers ticker.Repository,
	cache *redis.Client,
	limiter *rate.Limiter,
	retrier *retry.Retrier,
) *EmbeddingService {
	return &EmbeddingService{
		provider: provider,
		tickers:  tickers,
		cache:    cache,
		limiter:  limiter,
		retrier:  retrier,
	}
}

// EnsureTickerMatrix builds the normalized per-ticker embedding matrix,
// reusing stored vectors when caching is enabled and computing (then
// persisting) the rest in one batched backend call.
func (s *EmbeddingService) EnsureTickerMatrix(ctx context.Context, tickers []*ticker.Record, cfg run.PipelineConfig) error {
	log := logger.Get().With("component", "embedding_service")

	type pending struct {
		record *ticker.Record
		text   string
	}

	ids := make([]int64, 0, len(tickers))
	vectors := make([][]float32, 0, len(tickers))
	var missing []pending

	for _, t := range tickers {
		names := t.AllNames()
		if len(names) == 0 {
			continue
		}

		if cfg.CacheEmbeddings && len(t.EmbedVector) > 0 {
			ids = append(ids, t.ID)
			vectors = append(vectors, normalizeVector(t.EmbedVector))
			continue
		}

		text := names[0]
		if len(names) > 1 {
			text += " " + strings.Join(names[1:], " ")
		}
		missing = append(missing, pending{record: t, text: text})
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, p := range missing {
			texts[i] = p.text
		}

		computed, err := s.encodeBatch(ctx, texts)
		if err != nil {
			return errors.Wrap(err, "compute ticker embeddings")
		}
		if len(computed) != len(missing) {
			return errors.Wrapf(errors.ErrEmbeddingBackend, "got %d vectors for %d tickers", len(computed), len(missing))
		}

		for i, p := range missing {
			p.record.EmbedVector = computed[i]
			ids = append(ids, p.record.ID)
			vectors = append(vectors, normalizeVector(computed[i]))

			if cfg.CacheEmbeddings && s.tickers != nil {
				if err := s.tickers.StoreEmbedding(ctx, p.record.ID, computed[i], s.provider.Name()); err != nil {
					log.Warnw("Failed to persist ticker embedding", "ticker_id", p.record.ID, "error", err)
				}
			}
		}
	}

	s.mu.Lock()
	s.tickerIDs = ids
	s.matrix = vectors
	s.mu.Unlock()

	log.Infow("Ticker embedding matrix ready", "tickers", len(ids), "computed", len(missing))
	return nil
}

// EncodeText returns the embedding for one text, consulting the Redis cache
// first when available
func (s *EmbeddingService) EncodeText(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := s.cacheGet(ctx, text); ok {
		return vector, nil
	}

	vectors, err := s.encodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errors.Wrapf(errors.ErrEmbeddingBackend, "got %d vectors for 1 text", len(vectors))
	}

	s.cacheSet(ctx, text, vectors[0])
	return vectors[0], nil
}

// EncodeTexts returns index-aligned embeddings for a chunk, batching all
// cache misses into one backend call
func (s *EmbeddingService) EncodeTexts(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var (
		missTexts   []string
		missIndexes []int
	)
	for i, text := range texts {
		if vector, ok := s.cacheGet(ctx, text); ok {
			results[i] = vector
			continue
		}
		missTexts = append(missTexts, text)
		missIndexes = append(missIndexes, i)
	}

	if len(missTexts) > 0 {
		computed, err := s.encodeBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(computed) != len(missTexts) {
			return nil, errors.Wrapf(errors.ErrEmbeddingBackend, "got %d vectors for %d texts", len(computed), len(missTexts))
		}
		for j, idx := range missIndexes {
			results[idx] = computed[j]
			s.cacheSet(ctx, missTexts[j], computed[j])
		}
	}

	return results, nil
}

// Similarities computes cosine similarity of the vector against every row of
// the prepared matrix. Rows are pre-normalized, so this is a dot product.
func (s *EmbeddingService) Similarities(vector []float32) []ticker.SimilarityHit {
	query := normalizeVector(vector)

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]ticker.SimilarityHit, 0, len(s.tickerIDs))
	for i, id := range s.tickerIDs {
		hits = append(hits, ticker.SimilarityHit{
			TickerID:   id,
			Similarity: dotProduct(query, s.matrix[i]),
		})
	}
	return hits
}

// SearchSimilar pushes the similarity search down to the vector index
func (s *EmbeddingService) SearchSimilar(ctx context.Context, vector []float32, limit int) ([]ticker.SimilarityHit, error) {
	if s.tickers == nil {
		return s.Similarities(vector), nil
	}
	return s.tickers.SearchSimilar(ctx, vector, limit)
}

// encodeBatch is the single chokepoint for backend calls: rate limit, then
// retry with exponential backoff on transient failures.
func (s *EmbeddingService) encodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "embedding rate limiter")
		}
	}

	var vectors [][]float32
	call := func() error {
		var err error
		vectors, err = s.provider.GenerateBatchEmbeddings(ctx, texts)
		return err
	}

	var err error
	if s.retrier != nil {
		err = s.retrier.Do(ctx, call)
	} else {
		err = call()
	}
	metrics.RecordBackendCall("embedding", err)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrEmbeddingBackend, "embedding backend call failed: %v", err)
	}

	return vectors, nil
}

func (s *EmbeddingService) cacheGet(ctx context.Context, text string) ([]float32, bool) {
	if s.cache == nil {
		return nil, false
	}

	var vector []float32
	err := s.cache.Get(ctx, s.cacheKey(text), &vector)
	if err != nil {
		if !redis.IsCacheMiss(err) {
			logger.Get().With("component", "embedding_service").
				Warnw("Embedding cache read failed", "error", err)
		}
		return nil, false
	}
	return vector, len(vector) > 0
}

func (s *EmbeddingService) cacheSet(ctx context.Context, text string, vector []float32) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(text), vector, embedCacheTTL); err != nil {
		logger.Get().With("component", "embedding_service").
			Warnw("Embedding cache write failed", "error", err)
	}
}

func (s *EmbeddingService) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "tickerlink:embed:" + s.provider.Name() + ":" + hex.EncodeToString(sum[:])
}

func normalizeVector(vector []float32) []float32 {
	var sum float64
	for _, v := range vector {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vector
	}

	normalized := make([]float32, len(vector))
	for i, v := range vector {
		normalized[i] = float32(float64(v) / norm)
	}
	return normalized
}

func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
