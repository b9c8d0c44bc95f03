package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
	"tickerlink/pkg/errors"
)

// fakeEmbeddingSource serves canned similarity hits
type fakeEmbeddingSource struct {
	prepared    bool
	hits        []ticker.SimilarityHit
	annHits     []ticker.SimilarityHit
	annCalls    int
	encodeErr   error
	encodeCount int
}

func (s *fakeEmbeddingSource) EnsureTickerMatrix(_ context.Context, _ []*ticker.Record, _ run.PipelineConfig) error {
	s.prepared = true
	return nil
}

func (s *fakeEmbeddingSource) EncodeText(_ context.Context, _ string) ([]float32, error) {
	if s.encodeErr != nil {
		return nil, s.encodeErr
	}
	s.encodeCount++
	return []float32{1, 0}, nil
}

func (s *fakeEmbeddingSource) EncodeTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vector, err := s.EncodeText(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vector
	}
	return out, nil
}

func (s *fakeEmbeddingSource) Similarities(_ []float32) []ticker.SimilarityHit {
	return s.hits
}

func (s *fakeEmbeddingSource) SearchSimilar(_ context.Context, _ []float32, _ int) ([]ticker.SimilarityHit, error) {
	s.annCalls++
	return s.annHits, nil
}

func TestEmbedding_GenerateFiltersByCandidateThreshold(t *testing.T) {
	source := &fakeEmbeddingSource{hits: []ticker.SimilarityHit{
		{TickerID: 7, Similarity: 0.9},
		{TickerID: 12, Similarity: 0.65},
		{TickerID: 99, Similarity: 0.3},
	}}
	gen := NewEmbedding(WeightEmbedding, source)
	cfg := run.DefaultPipelineConfig()

	require.NoError(t, gen.Prepare(context.Background(), testTickers(), cfg))
	assert.True(t, source.prepared)

	signals, err := gen.Generate(context.Background(), newsItem(1, "some headline", ""), testTickers(), cfg)
	require.NoError(t, err)

	require.Len(t, signals, 2)
	assert.InDelta(t, 0.9*WeightEmbedding, signals[7].Score, 1e-9)
	assert.Equal(t, "true", signals[7].Metadata["auto_apply"])
	assert.Equal(t, "false", signals[12].Metadata["auto_apply"])
	assert.NotContains(t, signals, int64(99))
}

func TestEmbedding_BatchGenerateAligned(t *testing.T) {
	source := &fakeEmbeddingSource{hits: []ticker.SimilarityHit{{TickerID: 7, Similarity: 0.7}}}
	gen := NewEmbedding(WeightEmbedding, source)
	cfg := run.DefaultPipelineConfig()

	items := []*news.Item{newsItem(1, "a", ""), newsItem(2, "b", "")}
	results, err := gen.BatchGenerate(context.Background(), items, testTickers(), cfg)
	require.NoError(t, err)

	require.Len(t, results, 2)
	for i := range results {
		assert.Contains(t, results[i], int64(7), "item %d", i)
	}
}

func TestEmbedding_UseANNRoutesToIndex(t *testing.T) {
	source := &fakeEmbeddingSource{
		hits:    []ticker.SimilarityHit{{TickerID: 7, Similarity: 0.9}},
		annHits: []ticker.SimilarityHit{{TickerID: 12, Similarity: 0.9}},
	}
	gen := NewEmbedding(WeightEmbedding, source)
	cfg := run.DefaultPipelineConfig()
	cfg.UseANN = true

	signals, err := gen.Generate(context.Background(), newsItem(1, "a", ""), testTickers(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, source.annCalls)
	assert.Contains(t, signals, int64(12))
	assert.NotContains(t, signals, int64(7))
}

func TestEmbedding_EncoderFailurePropagates(t *testing.T) {
	source := &fakeEmbeddingSource{encodeErr: errors.ErrEmbeddingBackend}
	gen := NewEmbedding(WeightEmbedding, source)

	_, err := gen.Generate(context.Background(), newsItem(1, "a", ""), testTickers(), run.DefaultPipelineConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEmbeddingBackend))
}
