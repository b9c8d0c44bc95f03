package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
	"tickerlink/pkg/errors"
)

// stubGenerator implements Generator with canned signals
type stubGenerator struct {
	name       string
	weight     float64
	signals    map[int64]candidate.Signal
	prepareErr error
	genErr     error
}

func (s *stubGenerator) Name() string    { return s.name }
func (s *stubGenerator) Weight() float64 { return s.weight }

func (s *stubGenerator) Prepare(_ context.Context, _ []*ticker.Record, _ run.PipelineConfig) error {
	return s.prepareErr
}

func (s *stubGenerator) Generate(_ context.Context, _ *news.Item, _ []*ticker.Record, _ run.PipelineConfig) (map[int64]candidate.Signal, error) {
	if s.genErr != nil {
		return nil, s.genErr
	}
	return s.signals, nil
}

func TestHybrid_SingleMethodPassesThroughWeightedScore(t *testing.T) {
	sub := &stubGenerator{
		name:   MethodSubstring,
		weight: WeightSubstring,
		signals: map[int64]candidate.Signal{
			7: {Score: 1.0, Method: MethodSubstring, Metadata: map[string]string{"alias": "sberbank"}},
		},
	}

	hybrid := NewHybrid(1.0, sub)
	cfg := run.DefaultPipelineConfig()
	require.NoError(t, hybrid.Prepare(context.Background(), testTickers(), cfg))

	signals, err := hybrid.Generate(context.Background(), newsItem(1, "Sberbank", ""), testTickers(), cfg)
	require.NoError(t, err)

	require.Contains(t, signals, int64(7))
	// Single confident method: confidence factor lifts the score above the raw average.
	assert.GreaterOrEqual(t, signals[7].Score, 1.0)
	assert.Equal(t, MethodSubstring, signals[7].Method)
	assert.Equal(t, "1", signals[7].Metadata["method_count"])
}

func TestHybrid_AgreementBoostBeatsWeightedAverage(t *testing.T) {
	sub := &stubGenerator{
		name:   MethodSubstring,
		weight: WeightSubstring,
		signals: map[int64]candidate.Signal{
			7: {Score: 0.9, Method: MethodSubstring},
		},
	}
	emb := &stubGenerator{
		name:   MethodEmbedding,
		weight: WeightEmbedding,
		signals: map[int64]candidate.Signal{
			7: {Score: 0.65, Method: MethodEmbedding},
		},
	}

	hybrid := NewHybrid(1.0, sub, emb)
	cfg := run.DefaultPipelineConfig()
	require.NoError(t, hybrid.Prepare(context.Background(), testTickers(), cfg))

	signals, err := hybrid.Generate(context.Background(), newsItem(2, "x", ""), testTickers(), cfg)
	require.NoError(t, err)

	require.Contains(t, signals, int64(7))
	weightedAvg := (0.9*WeightSubstring + 0.65*WeightEmbedding) / (WeightSubstring + WeightEmbedding)
	assert.Greater(t, signals[7].Score, weightedAvg)

	assert.Equal(t, "embedding|substring", signals[7].Method)
	assert.Equal(t, "2", signals[7].Metadata["method_count"])
}

func TestHybrid_FailingGeneratorIsIsolated(t *testing.T) {
	broken := &stubGenerator{
		name:   MethodFuzzy,
		weight: WeightFuzzy,
		genErr: errors.ErrInternal,
	}
	working := &stubGenerator{
		name:   MethodSubstring,
		weight: WeightSubstring,
		signals: map[int64]candidate.Signal{
			12: {Score: 1.0, Method: MethodSubstring},
		},
	}

	hybrid := NewHybrid(1.0, broken, working)
	cfg := run.DefaultPipelineConfig()
	require.NoError(t, hybrid.Prepare(context.Background(), testTickers(), cfg))

	signals, err := hybrid.Generate(context.Background(), newsItem(3, "x", ""), testTickers(), cfg)
	require.NoError(t, err)
	assert.Contains(t, signals, int64(12))
}

func TestHybrid_FailedPrepareDropsGenerator(t *testing.T) {
	broken := &stubGenerator{
		name:       MethodEmbedding,
		weight:     WeightEmbedding,
		prepareErr: errors.ErrEmbeddingBackend,
	}
	working := &stubGenerator{
		name:   MethodSubstring,
		weight: WeightSubstring,
		signals: map[int64]candidate.Signal{
			7: {Score: 1.0, Method: MethodSubstring},
		},
	}

	hybrid := NewHybrid(1.0, broken, working)
	cfg := run.DefaultPipelineConfig()
	require.NoError(t, hybrid.Prepare(context.Background(), testTickers(), cfg))

	signals, err := hybrid.Generate(context.Background(), newsItem(4, "x", ""), testTickers(), cfg)
	require.NoError(t, err)
	assert.Contains(t, signals, int64(7))
}

func TestConfidenceFactor(t *testing.T) {
	// Single high-score method: 1.0 + 0.1 average boost.
	one := []candidate.Signal{{Score: 0.9}}
	assert.InDelta(t, 1.1, confidenceFactor(one, 1), 1e-9)

	// Two methods with a high average hit the 1.2 cap.
	two := []candidate.Signal{{Score: 0.9}, {Score: 0.85}}
	assert.InDelta(t, 1.2, confidenceFactor(two, 2), 1e-9)

	// Very low scores are penalized.
	low := []candidate.Signal{{Score: 0.1}}
	assert.InDelta(t, 0.8, confidenceFactor(low, 1), 1e-9)

	assert.Zero(t, confidenceFactor(nil, 0))
}

func TestJoinMethods(t *testing.T) {
	assert.Equal(t, "embedding|fuzzy|substring",
		joinMethods([]string{"substring", "embedding", "fuzzy", "substring"}))
}
