package ticker

// Record represents a tradable instrument with its known names.
// Seeded by the reference-data loader; EmbedVector is a lazily computed
// write-through cache of the instrument's embedding.
type Record struct {
	ID          int64     `db:"id"`
	Ticker      string    `db:"ticker"`
	Name        string    `db:"name"`
	Aliases     []string  `db:"-"`
	ISIN        string    `db:"isin"`
	Exchange    string    `db:"exchange"`
	Description string    `db:"description"`
	EmbedVector []float32 `db:"-"`
}

// AllNames returns the lexical universe for this instrument: ticker symbol,
// display name, aliases and description, deduplicated in order.
func (r *Record) AllNames() []string {
	names := make([]string, 0, len(r.Aliases)+3)
	seen := make(map[string]struct{})

	add := func(value string) {
		if value == "" {
			return
		}
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		names = append(names, value)
	}

	add(r.Ticker)
	add(r.Name)
	for _, alias := range r.Aliases {
		add(alias)
	}
	add(r.Description)

	return names
}
