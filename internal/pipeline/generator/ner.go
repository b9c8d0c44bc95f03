package generator

import (
	"context"
	"regexp"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"tickerlink/internal/adapters/ner"
	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
	"tickerlink/pkg/logger"
	"tickerlink/pkg/retry"
)

// Compile-time check
var _ Generator = (*NER)(nil)

// Legal-entity suffixes recognized after a company name, Russian and English
const legalSuffixes = `ООО|ОАО|ЗАО|ПАО|АО|ИП|LLC|Inc|Corp|Corporation|Company|Co|Ltd|Limited|` +
	`Группа|Group|Холдинг|Holding|Банк|Bank`

const (
	matchTypeEntity  = "entity"
	matchTypePattern = "pattern"

	nerFuzzyMatchThreshold = 0.8
)

// NER matches organization/person/monetary entity spans from an external
// NER oracle against ticker names, plus a suffix-aware literal regex scan
// that works even when the oracle is down.
type NER struct {
	weight   float64
	provider ner.Provider
	retrier  *retry.Retrier

	tickerEntities map[int64][]string
	patterns       map[int64][]*regexp.Regexp
}

// NewNER creates a NER generator. Provider may be nil, in which case only
// the pattern scan contributes.
func NewNER(weight float64, provider ner.Provider, retrier *retry.Retrier) *NER {
	return &NER{weight: weight, provider: provider, retrier: retrier}
}

// Name returns the method tag
func (g *NER) Name() string { return MethodNER }

// Weight returns the strategy weight
func (g *NER) Weight() float64 { return g.weight }

// Prepare builds literal and suffix-aware patterns for every ticker name
func (g *NER) Prepare(_ context.Context, tickers []*ticker.Record, _ run.PipelineConfig) error {
	entities := make(map[int64][]string, len(tickers))
	patterns := make(map[int64][]*regexp.Regexp, len(tickers))

	for _, t := range tickers {
		names := t.AllNames()
		if len(names) == 0 {
			continue
		}

		pats := make([]*regexp.Regexp, 0, len(names)*2)
		for _, name := range names {
			pats = append(pats,
				wordBoundaryWithSuffix(name, legalSuffixes),
				wordBoundary(name),
			)
		}

		entities[t.ID] = names
		patterns[t.ID] = pats
	}

	g.tickerEntities = entities
	g.patterns = patterns

	logger.Get().With("component", "ner_generator").
		Infow("Prepared NER patterns", "tickers", len(entities))
	return nil
}

// Generate extracts entities from the oracle, scans the text with the literal
// patterns, and scores the best match per ticker
func (g *NER) Generate(ctx context.Context, item *news.Item, tickers []*ticker.Record, cfg run.PipelineConfig) (map[int64]candidate.Signal, error) {
	extracted := g.extractEntities(ctx, item)

	results := make(map[int64]candidate.Signal)
	for _, t := range tickers {
		entities, ok := g.tickerEntities[t.ID]
		if !ok {
			continue
		}

		var (
			bestScore float64
			bestMatch string
			matchType string
		)

		for _, entity := range extracted {
			for _, tickerEntity := range entities {
				if !fuzzyMatch(entity, tickerEntity) {
					continue
				}
				score := nerScore(entity, tickerEntity, matchTypeEntity)
				if score > bestScore {
					bestScore = score
					bestMatch = entity
					matchType = matchTypeEntity
				}
			}
		}

		for _, pattern := range g.patterns[t.ID] {
			for _, groups := range pattern.FindAllStringSubmatch(item.Text(), -1) {
				match := groups[1]
				for _, tickerEntity := range entities {
					if !fuzzyMatch(match, tickerEntity) {
						continue
					}
					score := nerScore(match, tickerEntity, matchTypePattern)
					if score > bestScore {
						bestScore = score
						bestMatch = match
						matchType = matchTypePattern
					}
				}
			}
		}

		if bestScore >= cfg.ReviewLowerThreshold {
			results[t.ID] = candidate.Signal{
				Score:  bestScore * g.weight,
				Method: g.Name(),
				Metadata: map[string]string{
					"matched_entity": bestMatch,
					"match_type":     matchType,
					"ticker_entity":  t.Ticker,
				},
			}
		}
	}

	return results, nil
}

// extractEntities calls the NER oracle with retry. Oracle failure degrades to
// pattern-only matching instead of failing the item.
func (g *NER) extractEntities(ctx context.Context, item *news.Item) []string {
	if g.provider == nil {
		return nil
	}

	var entities []ner.Entity
	call := func() error {
		var callErr error
		entities, callErr = g.provider.ExtractEntities(ctx, item.Text())
		return callErr
	}

	var err error
	if g.retrier != nil {
		err = g.retrier.Do(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		logger.Get().With("component", "ner_generator").
			Warnw("Entity extraction failed, falling back to pattern matching",
				"news_id", item.ID, "error", err)
		return nil
	}

	seen := make(map[string]struct{}, len(entities)*2)
	out := make([]string, 0, len(entities)*2)
	add := func(value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}

	for _, entity := range entities {
		switch entity.Label {
		case ner.LabelOrganization, ner.LabelPerson, ner.LabelMoney:
			add(entity.Text)
			add(entity.Lemma)
		}
	}

	return out
}

// fuzzyMatch reports whether two names are close enough to be the same entity
func fuzzyMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}

	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la == lb {
		return true
	}
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return true
	}

	return float64(fuzzy.Ratio(la, lb))/100.0 >= nerFuzzyMatchThreshold
}

// nerScore rates a single match: exact 0.95, mutual-substring 0.85, else the
// 0.7 base, boosted for oracle-sourced and longer (more specific) matches
func nerScore(matched, tickerEntity, matchType string) float64 {
	base := 0.7

	lm, le := strings.ToLower(matched), strings.ToLower(tickerEntity)
	if lm == le {
		base = 0.95
	} else if strings.Contains(lm, le) || strings.Contains(le, lm) {
		base = 0.85
	}

	if matchType == matchTypeEntity {
		base += 0.1
	}
	if len(matched) > 10 {
		base += 0.05
	}

	if base > 1.0 {
		base = 1.0
	}
	return base
}
