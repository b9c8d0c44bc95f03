package generator

import (
	"context"
	"regexp"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
)

// Compile-time check
var _ Generator = (*Substring)(nil)

// Substring matches normalized ticker aliases by exact containment in the
// normalized news text, with a raw word-boundary fallback for aliases that
// normalization mangles.
type Substring struct {
	weight float64

	normalizedAliases map[int64][]string
	rawPatterns       map[int64][]rawPattern
}

type rawPattern struct {
	re   *regexp.Regexp
	name string
}

// NewSubstring creates a substring generator
func NewSubstring(weight float64) *Substring {
	return &Substring{weight: weight}
}

// Name returns the method tag
func (g *Substring) Name() string { return MethodSubstring }

// Weight returns the strategy weight
func (g *Substring) Weight() float64 { return g.weight }

// Prepare builds normalized alias and raw pattern indexes per ticker
func (g *Substring) Prepare(_ context.Context, tickers []*ticker.Record, _ run.PipelineConfig) error {
	aliases := make(map[int64][]string, len(tickers))
	patterns := make(map[int64][]rawPattern, len(tickers))

	for _, t := range tickers {
		names := make([]string, 0, len(t.Aliases)+2)
		if t.Ticker != "" {
			names = append(names, t.Ticker)
		}
		if t.Name != "" {
			names = append(names, t.Name)
		}
		for _, alias := range t.Aliases {
			if alias != "" {
				names = append(names, alias)
			}
		}

		normed := make([]string, 0, len(names))
		raws := make([]rawPattern, 0, len(names))
		for _, name := range names {
			if n := NormalizeText(name); n != "" {
				normed = append(normed, n)
			}
			raws = append(raws, rawPattern{re: wordBoundary(name), name: strings.ToLower(name)})
		}

		aliases[t.ID] = normed
		patterns[t.ID] = raws
	}

	g.normalizedAliases = aliases
	g.rawPatterns = patterns
	return nil
}

// Generate emits score 1.0 for exact normalized containment, or a blended
// score for a raw word-boundary hit that is only fuzzily close to an alias
func (g *Substring) Generate(_ context.Context, item *news.Item, tickers []*ticker.Record, _ run.PipelineConfig) (map[int64]candidate.Signal, error) {
	haystack := NormalizeText(item.Text())
	rawText := strings.ToLower(item.Text())

	results := make(map[int64]candidate.Signal)
	for _, t := range tickers {
		aliases := g.normalizedAliases[t.ID]
		patterns := g.rawPatterns[t.ID]
		if len(aliases) == 0 && len(patterns) == 0 {
			continue
		}

		var (
			score        float64
			matchedAlias string
		)

		for _, alias := range aliases {
			if strings.Contains(haystack, alias) {
				score = 1.0
				matchedAlias = alias
				break
			}
		}

		if score == 0 {
			for _, pattern := range patterns {
				if !pattern.re.MatchString(rawText) {
					continue
				}
				// Raw hit only: degrade by how close the literal name is to
				// its normalized alias forms.
				aliasRatio := 0.8
				if len(aliases) > 0 {
					best := 0
					for _, alias := range aliases {
						if r := fuzzy.Ratio(pattern.name, alias); r > best {
							best = r
						}
					}
					aliasRatio = float64(best) / 100.0
				}
				blended := 0.8 + 0.2*aliasRatio
				if blended > 1.0 {
					blended = 1.0
				}
				score = blended
				matchedAlias = pattern.name
				break
			}
		}

		if score > 0 {
			if matchedAlias == "" {
				matchedAlias = t.Ticker
			}
			results[t.ID] = candidate.Signal{
				Score:    score * g.weight,
				Method:   g.Name(),
				Metadata: map[string]string{"alias": matchedAlias},
			}
		}
	}

	return results, nil
}
