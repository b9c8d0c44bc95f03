package generator

import (
	"context"

	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
)

// Method names. The set of strategies is closed; the hybrid generator holds
// a fixed list rather than an open plugin registry.
const (
	MethodSubstring = "substring"
	MethodFuzzy     = "fuzzy"
	MethodNER       = "ner"
	MethodEmbedding = "embedding"
	MethodHybrid    = "hybrid"
)

// Default per-method weights used by the hybrid consolidation. Lexical
// containment is the strongest evidence, semantic similarity the weakest.
const (
	WeightSubstring = 1.0
	WeightFuzzy     = 0.8
	WeightNER       = 0.7
	WeightEmbedding = 0.6
)

// Generator is one matching strategy producing per-(news, ticker) signals
type Generator interface {
	// Name returns the method tag stamped on emitted signals.
	Name() string

	// Weight returns the strategy weight applied to raw scores.
	Weight() float64

	// Prepare builds the strategy's one-time index over the ticker universe.
	Prepare(ctx context.Context, tickers []*ticker.Record, cfg run.PipelineConfig) error

	// Generate returns signals keyed by ticker ID. Sub-threshold signals are
	// never emitted.
	Generate(ctx context.Context, item *news.Item, tickers []*ticker.Record, cfg run.PipelineConfig) (map[int64]candidate.Signal, error)
}

// BatchGenerator is implemented by strategies whose inference is cheaper when
// vectorized across a whole chunk at once.
type BatchGenerator interface {
	Generator

	// BatchGenerate returns one signal map per input item, index-aligned.
	BatchGenerate(ctx context.Context, items []*news.Item, tickers []*ticker.Record, cfg run.PipelineConfig) ([]map[int64]candidate.Signal, error)
}
