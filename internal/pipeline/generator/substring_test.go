package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
)

func testTickers() []*ticker.Record {
	return []*ticker.Record{
		{ID: 7, Ticker: "SBER", Name: "Sberbank", Aliases: []string{"Сбербанк"}},
		{ID: 12, Ticker: "GAZP", Name: "Gazprom", Aliases: []string{"Газпром"}},
	}
}

func newsItem(id int64, title, body string) *news.Item {
	return &news.Item{ID: id, Title: title, Body: body}
}

func TestSubstring_ExactAliasMatch(t *testing.T) {
	gen := NewSubstring(1.0)
	tickers := testTickers()
	cfg := run.DefaultPipelineConfig()

	require.NoError(t, gen.Prepare(context.Background(), tickers, cfg))

	signals, err := gen.Generate(context.Background(),
		newsItem(1, "Sberbank reports record quarterly profit", ""), tickers, cfg)
	require.NoError(t, err)

	require.Contains(t, signals, int64(7))
	assert.Equal(t, 1.0, signals[7].Score)
	assert.Equal(t, MethodSubstring, signals[7].Method)
	assert.Equal(t, "sberbank", signals[7].Metadata["alias"])

	assert.NotContains(t, signals, int64(12))
}

func TestSubstring_CyrillicAlias(t *testing.T) {
	gen := NewSubstring(1.0)
	tickers := testTickers()
	cfg := run.DefaultPipelineConfig()

	require.NoError(t, gen.Prepare(context.Background(), tickers, cfg))

	signals, err := gen.Generate(context.Background(),
		newsItem(2, "Газпром увеличил добычу газа", ""), tickers, cfg)
	require.NoError(t, err)

	require.Contains(t, signals, int64(12))
	assert.Equal(t, 1.0, signals[12].Score)
}

func TestSubstring_NoMatch(t *testing.T) {
	gen := NewSubstring(1.0)
	tickers := testTickers()
	cfg := run.DefaultPipelineConfig()

	require.NoError(t, gen.Prepare(context.Background(), tickers, cfg))

	signals, err := gen.Generate(context.Background(),
		newsItem(3, "Unrelated macroeconomic headline", ""), tickers, cfg)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestSubstring_WeightApplied(t *testing.T) {
	gen := NewSubstring(0.5)
	tickers := testTickers()
	cfg := run.DefaultPipelineConfig()

	require.NoError(t, gen.Prepare(context.Background(), tickers, cfg))

	signals, err := gen.Generate(context.Background(),
		newsItem(4, "Sberbank expands retail lending", ""), tickers, cfg)
	require.NoError(t, err)

	require.Contains(t, signals, int64(7))
	assert.InDelta(t, 0.5, signals[7].Score, 1e-9)
}

func TestSubstring_TitleAndBodyBothSearched(t *testing.T) {
	gen := NewSubstring(1.0)
	tickers := testTickers()
	cfg := run.DefaultPipelineConfig()

	require.NoError(t, gen.Prepare(context.Background(), tickers, cfg))

	signals, err := gen.Generate(context.Background(),
		newsItem(5, "Banking sector update", "Analysts upgraded Sberbank to buy"), tickers, cfg)
	require.NoError(t, err)
	assert.Contains(t, signals, int64(7))
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "sberbank reports profit", NormalizeText("Sberbank, reports: profit!"))
	assert.Equal(t, "газпром нефть", NormalizeText("Газпром  нефть"))
	assert.Equal(t, "", NormalizeText(""))
	assert.Equal(t, []string{"a", "b"}, Tokens("A b."))
}
