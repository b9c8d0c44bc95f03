package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
	"tickerlink/internal/metrics"
	"tickerlink/pkg/errors"
)

// fakeEmbeddingProvider returns deterministic vectors and counts calls
type fakeEmbeddingProvider struct {
	mu         sync.Mutex
	batchCalls int
	batchErr   error
	vectorFor  func(text string) []float32
}

func newFakeEmbeddingProvider() *fakeEmbeddingProvider {
	return &fakeEmbeddingProvider{
		vectorFor: func(text string) []float32 {
			// Orthogonal axes keyed by first byte keep similarity checks simple.
			v := make([]float32, 4)
			if len(text) > 0 {
				v[int(text[0])%4] = 1
			}
			return v
		},
	}
}

func (p *fakeEmbeddingProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *fakeEmbeddingProvider) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batchCalls++
	if p.batchErr != nil {
		return nil, p.batchErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.vectorFor(text)
	}
	return out, nil
}

func (p *fakeEmbeddingProvider) Dimensions() int { return 4 }
func (p *fakeEmbeddingProvider) Name() string    { return "fake-embedding" }

func (p *fakeEmbeddingProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batchCalls
}

type embeddingStoreRecorder struct {
	fakeTickerRepo
	mu     sync.Mutex
	stored map[int64]string // ticker ID -> model name
}

func (r *embeddingStoreRecorder) StoreEmbedding(_ context.Context, tickerID int64, _ []float32, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stored == nil {
		r.stored = make(map[int64]string)
	}
	r.stored[tickerID] = model
	return nil
}

func TestEnsureTickerMatrix_ComputesMissingAndPersists(t *testing.T) {
	provider := newFakeEmbeddingProvider()
	repo := &embeddingStoreRecorder{}
	svc := NewEmbeddingService(provider, repo, nil, nil, nil)

	tickers := []*ticker.Record{
		{ID: 7, Ticker: "SBER", Name: "Sberbank"},
		{ID: 12, Ticker: "GAZP", Name: "Gazprom"},
	}
	cfg := run.DefaultPipelineConfig()

	require.NoError(t, svc.EnsureTickerMatrix(context.Background(), tickers, cfg))

	// Both vectors computed in a single batched backend call.
	assert.Equal(t, 1, provider.calls())
	assert.Equal(t, "fake-embedding", repo.stored[7])
	assert.Equal(t, "fake-embedding", repo.stored[12])
	assert.NotEmpty(t, tickers[0].EmbedVector)
}

func TestEnsureTickerMatrix_ReusesStoredVectors(t *testing.T) {
	provider := newFakeEmbeddingProvider()
	svc := NewEmbeddingService(provider, nil, nil, nil, nil)

	tickers := []*ticker.Record{
		{ID: 7, Ticker: "SBER", Name: "Sberbank", EmbedVector: []float32{0, 1, 0, 0}},
	}
	cfg := run.DefaultPipelineConfig()

	require.NoError(t, svc.EnsureTickerMatrix(context.Background(), tickers, cfg))
	assert.Zero(t, provider.calls())

	hits := svc.Similarities([]float32{0, 2, 0, 0})
	require.Len(t, hits, 1)
	assert.Equal(t, int64(7), hits[0].TickerID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestEnsureTickerMatrix_RecomputesWhenCachingDisabled(t *testing.T) {
	provider := newFakeEmbeddingProvider()
	svc := NewEmbeddingService(provider, nil, nil, nil, nil)

	tickers := []*ticker.Record{
		{ID: 7, Ticker: "SBER", Name: "Sberbank", EmbedVector: []float32{0, 1, 0, 0}},
	}
	cfg := run.DefaultPipelineConfig()
	cfg.CacheEmbeddings = false

	require.NoError(t, svc.EnsureTickerMatrix(context.Background(), tickers, cfg))
	assert.Equal(t, 1, provider.calls())
}

func TestEncodeTexts_AlignedWithInput(t *testing.T) {
	provider := newFakeEmbeddingProvider()
	svc := NewEmbeddingService(provider, nil, nil, nil, nil)

	texts := []string{"alpha", "bravo", "charlie"}
	vectors, err := svc.EncodeTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for i, text := range texts {
		assert.Equal(t, provider.vectorFor(text), vectors[i], "vector %d misaligned", i)
	}
}

func TestEncodeText_BackendFailureIsWrapped(t *testing.T) {
	provider := newFakeEmbeddingProvider()
	provider.batchErr = errors.ErrUnavailable
	svc := NewEmbeddingService(provider, nil, nil, nil, nil)

	_, err := svc.EncodeText(context.Background(), "alpha")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmbeddingBackend))
}

func TestEncodeText_CountsBackendCalls(t *testing.T) {
	success := metrics.BackendCalls.WithLabelValues("embedding", "success")
	failure := metrics.BackendCalls.WithLabelValues("embedding", "error")
	successBefore := testutil.ToFloat64(success)
	failureBefore := testutil.ToFloat64(failure)

	provider := newFakeEmbeddingProvider()
	svc := NewEmbeddingService(provider, nil, nil, nil, nil)

	_, err := svc.EncodeText(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, successBefore+1, testutil.ToFloat64(success))

	provider.batchErr = errors.ErrUnavailable
	_, err = svc.EncodeText(context.Background(), "bravo")
	require.Error(t, err)
	assert.Equal(t, failureBefore+1, testutil.ToFloat64(failure))
}

func TestSimilarities_RanksCloserVectorHigher(t *testing.T) {
	provider := newFakeEmbeddingProvider()
	svc := NewEmbeddingService(provider, nil, nil, nil, nil)

	tickers := []*ticker.Record{
		{ID: 1, Ticker: "A", Name: "aaa"},
		{ID: 2, Ticker: "B", Name: "bbb"},
	}
	cfg := run.DefaultPipelineConfig()
	require.NoError(t, svc.EnsureTickerMatrix(context.Background(), tickers, cfg))

	hits := svc.Similarities(provider.vectorFor("aaa"))
	require.Len(t, hits, 2)

	byID := make(map[int64]float64, len(hits))
	for _, hit := range hits {
		byID[hit.TickerID] = hit.Similarity
	}
	assert.Greater(t, byID[1], byID[2])
}
