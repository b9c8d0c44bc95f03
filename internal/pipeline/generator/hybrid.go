package generator

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
	"tickerlink/pkg/logger"
)

// Compile-time checks
var (
	_ Generator      = (*Hybrid)(nil)
	_ BatchGenerator = (*Hybrid)(nil)
)

// Hybrid composes the four matching strategies and consolidates their
// signals: per-method weighted average, agreement boost when independent
// methods concur, and a confidence factor from method diversity.
type Hybrid struct {
	weight     float64
	generators []Generator
	weights    map[string]float64
}

// NewHybrid creates a hybrid generator over the given strategies. Weights
// default per method; the top-level weight is normally 1.0.
func NewHybrid(weight float64, generators ...Generator) *Hybrid {
	weights := make(map[string]float64, len(generators))
	for _, g := range generators {
		weights[g.Name()] = g.Weight()
	}

	return &Hybrid{
		weight:     weight,
		generators: generators,
		weights:    weights,
	}
}

// Name returns the method tag
func (g *Hybrid) Name() string { return MethodHybrid }

// Weight returns the top-level weight
func (g *Hybrid) Weight() float64 { return g.weight }

// Prepare initializes every sub-generator. A strategy that fails to prepare
// is dropped; the remaining strategies still contribute.
func (g *Hybrid) Prepare(ctx context.Context, tickers []*ticker.Record, cfg run.PipelineConfig) error {
	log := logger.Get().With("component", "hybrid_generator")

	prepared := make([]Generator, 0, len(g.generators))
	for _, sub := range g.generators {
		if err := sub.Prepare(ctx, tickers, cfg); err != nil {
			log.Warnw("Failed to prepare generator, dropping it", "generator", sub.Name(), "error", err)
			continue
		}
		prepared = append(prepared, sub)
		log.Infow("Prepared generator", "generator", sub.Name(), "weight", sub.Weight())
	}
	g.generators = prepared

	log.Infow("Hybrid generator prepared", "sub_generators", len(prepared))
	return nil
}

// Generate runs every sub-generator and consolidates their signals per ticker
func (g *Hybrid) Generate(ctx context.Context, item *news.Item, tickers []*ticker.Record, cfg run.PipelineConfig) (map[int64]candidate.Signal, error) {
	collected := make(map[int64][]candidate.Signal)

	for _, sub := range g.generators {
		signals, err := sub.Generate(ctx, item, tickers, cfg)
		if err != nil {
			logger.Get().With("component", "hybrid_generator").
				Warnw("Generator failed", "generator", sub.Name(), "news_id", item.ID, "error", err)
			continue
		}
		for tickerID, signal := range signals {
			collected[tickerID] = append(collected[tickerID], signal)
		}
	}

	return g.consolidate(collected), nil
}

// BatchGenerate runs the embedding strategy over the whole chunk in one
// backend call, the rest per item, then applies the same consolidation as
// Generate.
func (g *Hybrid) BatchGenerate(ctx context.Context, items []*news.Item, tickers []*ticker.Record, cfg run.PipelineConfig) ([]map[int64]candidate.Signal, error) {
	log := logger.Get().With("component", "hybrid_generator")

	var (
		batchSub  BatchGenerator
		perItem   []Generator
		batchSigs []map[int64]candidate.Signal
	)

	for _, sub := range g.generators {
		if bg, ok := sub.(BatchGenerator); ok && batchSub == nil {
			batchSub = bg
			continue
		}
		perItem = append(perItem, sub)
	}

	if batchSub != nil {
		var err error
		batchSigs, err = batchSub.BatchGenerate(ctx, items, tickers, cfg)
		if err != nil {
			log.Warnw("Batch generation failed, continuing without it", "generator", batchSub.Name(), "error", err)
			batchSigs = nil
		}
	}

	results := make([]map[int64]candidate.Signal, len(items))
	for i, item := range items {
		collected := make(map[int64][]candidate.Signal)

		if i < len(batchSigs) {
			for tickerID, signal := range batchSigs[i] {
				collected[tickerID] = append(collected[tickerID], signal)
			}
		}

		for _, sub := range perItem {
			signals, err := sub.Generate(ctx, item, tickers, cfg)
			if err != nil {
				log.Warnw("Generator failed", "generator", sub.Name(), "news_id", item.ID, "error", err)
				continue
			}
			for tickerID, signal := range signals {
				collected[tickerID] = append(collected[tickerID], signal)
			}
		}

		results[i] = g.consolidate(collected)
	}

	return results, nil
}

// consolidate merges per-ticker signals into one final signal each
func (g *Hybrid) consolidate(collected map[int64][]candidate.Signal) map[int64]candidate.Signal {
	combined := make(map[int64]candidate.Signal, len(collected))

	for tickerID, signals := range collected {
		if len(signals) == 0 {
			continue
		}

		var (
			totalWeight   float64
			weightedScore float64
			methods       []string
		)
		metadata := make(map[string]string)

		for _, signal := range signals {
			weight, ok := g.weights[signal.Method]
			if !ok {
				weight = 1.0
			}
			totalWeight += weight
			weightedScore += signal.Score * weight
			methods = append(methods, signal.Method)

			for key, value := range signal.Metadata {
				metadata[signal.Method+"."+key] = value
			}
		}

		if totalWeight <= 0 {
			continue
		}
		finalScore := weightedScore / totalWeight

		methodCount := countUnique(methods)
		if methodCount > 1 {
			boost := 0.1 * float64(methodCount-1)
			if boost > 0.2 {
				boost = 0.2
			}
			finalScore += boost
			if finalScore > 1.0 {
				finalScore = 1.0
			}
		}

		confidence := confidenceFactor(signals, methodCount)
		finalScore *= confidence

		joined := joinMethods(methods)
		metadata["methods"] = joined
		metadata["method_count"] = strconv.Itoa(methodCount)
		metadata["confidence_factor"] = strconv.FormatFloat(confidence, 'f', 4, 64)

		combined[tickerID] = candidate.Signal{
			Score:    finalScore * g.weight,
			Method:   joined,
			Metadata: metadata,
		}
	}

	return combined
}

// confidenceFactor rewards method diversity and high average raw scores,
// penalizes very low averages, capped at 1.2
func confidenceFactor(signals []candidate.Signal, methodCount int) float64 {
	if len(signals) == 0 {
		return 0
	}

	confidence := 1.0
	if methodCount > 1 {
		confidence += 0.1 * float64(methodCount-1)
	}

	var sum float64
	for _, signal := range signals {
		sum += signal.Score
	}
	avg := sum / float64(len(signals))

	switch {
	case avg > 0.8:
		confidence += 0.1
	case avg > 0.6:
		confidence += 0.05
	}
	if avg < 0.3 {
		confidence *= 0.8
	}

	if confidence > 1.2 {
		confidence = 1.2
	}
	return confidence
}

func countUnique(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func joinMethods(methods []string) string {
	seen := make(map[string]struct{}, len(methods))
	unique := make([]string, 0, len(methods))
	for _, m := range methods {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		unique = append(unique, m)
	}
	sort.Strings(unique)
	return strings.Join(unique, "|")
}
