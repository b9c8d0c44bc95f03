package clickhouse

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"tickerlink/internal/domain/run"
)

// Compile-time check
var _ run.StatsSink = (*RunStatsRepository)(nil)

// RunStatsRepository persists derived per-run analytics to ClickHouse
type RunStatsRepository struct {
	conn driver.Conn
}

// NewRunStatsRepository creates a new run stats repository
func NewRunStatsRepository(conn driver.Conn) *RunStatsRepository {
	return &RunStatsRepository{conn: conn}
}

// EnsureSchema creates the analytics table if absent
func (r *RunStatsRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS pipeline_run_stats (
			timestamp DateTime64(3),
			batch_id String,
			total_news Int32,
			processed_news Int32,
			candidates_generated Int32,
			auto_applied Int32,
			skipped_duplicates Int32,
			errors Int32,
			duration_seconds Float64,
			chunk_count Int32,
			avg_time_per_news Float64,
			candidates_per_news Float64,
			auto_apply_rate Float64,
			error_rate Float64,
			throughput_news_per_second Float64
		) ENGINE = MergeTree()
		ORDER BY (timestamp, batch_id)
		TTL toDateTime(timestamp) + INTERVAL 180 DAY`

	return r.conn.Exec(ctx, query)
}

const insertRunStats = `
	INSERT INTO pipeline_run_stats (
		timestamp, batch_id,
		total_news, processed_news, candidates_generated,
		auto_applied, skipped_duplicates, errors,
		duration_seconds, chunk_count,
		avg_time_per_news, candidates_per_news,
		auto_apply_rate, error_rate, throughput_news_per_second
	)`

// InsertRunStats inserts a single run summary
func (r *RunStatsRepository) InsertRunStats(ctx context.Context, stats *run.PerformanceMetrics) error {
	query := insertRunStats + ` VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
	)`

	return r.conn.Exec(ctx, query,
		stats.Timestamp, stats.BatchID,
		int32(stats.TotalNews), int32(stats.ProcessedNews), int32(stats.CandidatesGenerated),
		int32(stats.AutoApplied), int32(stats.SkippedDuplicates), int32(stats.Errors),
		stats.DurationSeconds, int32(stats.ChunkCount),
		stats.AvgTimePerNews, stats.CandidatesPerNews,
		stats.AutoApplyRate, stats.ErrorRate, stats.ThroughputNewsPerSecond,
	)
}

// InsertRunStatsBatch inserts multiple run summaries in one batch
func (r *RunStatsRepository) InsertRunStatsBatch(ctx context.Context, stats []run.PerformanceMetrics) error {
	if len(stats) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, insertRunStats)
	if err != nil {
		return err
	}

	for _, s := range stats {
		err := batch.Append(
			s.Timestamp, s.BatchID,
			int32(s.TotalNews), int32(s.ProcessedNews), int32(s.CandidatesGenerated),
			int32(s.AutoApplied), int32(s.SkippedDuplicates), int32(s.Errors),
			s.DurationSeconds, int32(s.ChunkCount),
			s.AvgTimePerNews, s.CandidatesPerNews,
			s.AutoApplyRate, s.ErrorRate, s.ThroughputNewsPerSecond,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}
