package news

import (
	"strings"
	"time"
)

// Item represents one ingested news article. Rows are created by the
// ingestion side; the pipeline only flips the processed flags.
type Item struct {
	ID          int64      `db:"id"`
	Title       string     `db:"title"`
	Body        string     `db:"body"`
	Language    string     `db:"language"`
	PublishedAt *time.Time `db:"published_at"`
	IngestedAt  *time.Time `db:"ingested_at"`
	Source      string     `db:"source"`

	Processed            bool       `db:"processed"`
	ProcessedAt          *time.Time `db:"processed_at"`
	LastBatchID          *string    `db:"last_batch_id"`
	LastProcessedVersion *string    `db:"last_processed_version"`
}

// Text returns the matchable text of the article: title and body joined.
func (i *Item) Text() string {
	return strings.TrimSpace(i.Title + "\n" + i.Body)
}
