package generator

import (
	"context"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
)

// Compile-time check
var _ Generator = (*Fuzzy)(nil)

// Fuzzy scores tickers by the best token-set similarity ratio between the
// news text and any known instrument name.
type Fuzzy struct {
	weight   float64
	aliasMap map[int64][]string
}

// NewFuzzy creates a fuzzy generator
func NewFuzzy(weight float64) *Fuzzy {
	return &Fuzzy{weight: weight}
}

// Name returns the method tag
func (g *Fuzzy) Name() string { return MethodFuzzy }

// Weight returns the strategy weight
func (g *Fuzzy) Weight() float64 { return g.weight }

// Prepare snapshots each ticker's lexical universe
func (g *Fuzzy) Prepare(_ context.Context, tickers []*ticker.Record, _ run.PipelineConfig) error {
	aliasMap := make(map[int64][]string, len(tickers))
	for _, t := range tickers {
		aliasMap[t.ID] = t.AllNames()
	}
	g.aliasMap = aliasMap
	return nil
}

// Generate keeps the best-scoring alias per ticker and emits it only when the
// ratio clears the review threshold
func (g *Fuzzy) Generate(_ context.Context, item *news.Item, tickers []*ticker.Record, cfg run.PipelineConfig) (map[int64]candidate.Signal, error) {
	haystack := item.Text()

	results := make(map[int64]candidate.Signal)
	for _, t := range tickers {
		var (
			bestScore float64
			bestAlias string
		)
		for _, alias := range g.aliasMap[t.ID] {
			if alias == "" {
				continue
			}
			score := float64(fuzzy.TokenSetRatio(haystack, alias)) / 100.0
			if score > bestScore {
				bestScore = score
				bestAlias = alias
			}
		}

		if bestScore >= cfg.ReviewLowerThreshold {
			results[t.ID] = candidate.Signal{
				Score:    bestScore * g.weight,
				Method:   g.Name(),
				Metadata: map[string]string{"alias": bestAlias},
			}
		}
	}

	return results, nil
}
