package candidate

import (
	"sort"
	"strings"
	"time"

	"tickerlink/internal/domain/ticker"
)

// Confirmation states. A confirmed or rejected candidate is a human (or
// automated-operator) decision; auto_suggest is only a hint.
const (
	ConfirmationPending   = 0
	ConfirmationConfirmed = 1
	ConfirmationRejected  = -1
)

// Signal is one strategy's opinion about one (news, ticker) pair.
// Score is on the strategy-local [0,1] scale.
type Signal struct {
	Score    float64
	Method   string
	Metadata map[string]string
}

// TickerCandidate aggregates every signal a news item produced for one
// instrument.
type TickerCandidate struct {
	Ticker         *ticker.Record
	AggregateScore float64
	Signals        []Signal
	AutoApply      bool
}

// ToRecord flattens the candidate into its persisted form
func (c *TickerCandidate) ToRecord(newsID int64, batchID string) *Record {
	methods := make([]string, 0, len(c.Signals))
	metadata := make(map[string]map[string]string, len(c.Signals))
	for _, signal := range c.Signals {
		methods = append(methods, signal.Method)
		metadata[signal.Method] = signal.Metadata
	}
	sort.Strings(methods)

	return &Record{
		NewsID:      newsID,
		TickerID:    c.Ticker.ID,
		Score:       c.AggregateScore,
		Method:      strings.Join(methods, "|"),
		AutoSuggest: c.AutoApply,
		Metadata:    metadata,
		BatchID:     batchID,
	}
}

// Record is the persisted candidate, uniquely keyed by (news_id, ticker_id)
type Record struct {
	NewsID      int64
	TickerID    int64
	Score       float64
	Method      string
	AutoSuggest bool
	Metadata    map[string]map[string]string
	BatchID     string

	Confirmed   int
	ConfirmedBy *string
	ConfirmedAt *time.Time
}

// HistoryEntry is one score transition. PrevScore is nil for the insert.
type HistoryEntry struct {
	PrevScore *float64  `json:"prev_score"`
	NewScore  float64   `json:"new_score"`
	Method    string    `json:"method"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Existing is a stored candidate as loaded for comparison during upsert
type Existing struct {
	ID        int64
	NewsID    int64
	TickerID  int64
	Score     float64
	Method    string
	Confirmed int
	UpdatedAt *time.Time
	History   []HistoryEntry
}

// Upsert outcome reasons
const (
	ReasonInserted         = "inserted"
	ReasonScoreImproved    = "score_improved"
	ReasonScoreNotImproved = "score_not_improved"
	ReasonConfirmedLocked  = "confirmed_locked"
)

// Comparison reports what an upsert did, so callers can track consolidation
// metrics without re-querying. Locked and not-improved outcomes are expected,
// not errors.
type Comparison struct {
	NewsID        int64
	TickerID      int64
	ExistingScore float64
	NewScore      float64
	Updated       bool
	Reason        string
}
