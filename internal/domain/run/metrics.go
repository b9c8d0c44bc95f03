package run

import "time"

// Metrics accumulates counters over one processing run
type Metrics struct {
	TotalNews           int     `json:"total_news"`
	ProcessedNews       int     `json:"processed_news"`
	CandidatesGenerated int     `json:"candidates_generated"`
	AutoApplied         int     `json:"auto_applied"`
	SkippedDuplicates   int     `json:"skipped_duplicates"`
	Retries             int     `json:"retries"`
	Errors              int     `json:"errors"`
	DurationSeconds     float64 `json:"duration_seconds"`
	ChunkCount          int     `json:"chunk_count"`
}

// Add merges chunk-level counters into the run totals
func (m *Metrics) Add(other Metrics) {
	m.ProcessedNews += other.ProcessedNews
	m.CandidatesGenerated += other.CandidatesGenerated
	m.AutoApplied += other.AutoApplied
	m.SkippedDuplicates += other.SkippedDuplicates
	m.Retries += other.Retries
	m.Errors += other.Errors
}

// PerformanceMetrics are per-run derived analytics persisted to the
// analytics store for dashboarding.
type PerformanceMetrics struct {
	Timestamp               time.Time
	BatchID                 string
	TotalNews               int
	ProcessedNews           int
	CandidatesGenerated     int
	AutoApplied             int
	SkippedDuplicates       int
	Errors                  int
	DurationSeconds         float64
	ChunkCount              int
	AvgTimePerNews          float64
	CandidatesPerNews       float64
	AutoApplyRate           float64
	ErrorRate               float64
	ThroughputNewsPerSecond float64
}

// DerivePerformance computes ratio metrics from raw run counters
func DerivePerformance(m Metrics, batchID string, at time.Time) PerformanceMetrics {
	processed := m.ProcessedNews
	if processed < 1 {
		processed = 1
	}
	candidates := m.CandidatesGenerated
	if candidates < 1 {
		candidates = 1
	}
	total := m.TotalNews
	if total < 1 {
		total = 1
	}
	duration := m.DurationSeconds
	if duration < 0.001 {
		duration = 0.001
	}

	return PerformanceMetrics{
		Timestamp:               at,
		BatchID:                 batchID,
		TotalNews:               m.TotalNews,
		ProcessedNews:           m.ProcessedNews,
		CandidatesGenerated:     m.CandidatesGenerated,
		AutoApplied:             m.AutoApplied,
		SkippedDuplicates:       m.SkippedDuplicates,
		Errors:                  m.Errors,
		DurationSeconds:         m.DurationSeconds,
		ChunkCount:              m.ChunkCount,
		AvgTimePerNews:          m.DurationSeconds / float64(processed),
		CandidatesPerNews:       float64(m.CandidatesGenerated) / float64(processed),
		AutoApplyRate:           float64(m.AutoApplied) / float64(candidates),
		ErrorRate:               float64(m.Errors) / float64(total),
		ThroughputNewsPerSecond: float64(m.ProcessedNews) / duration,
	}
}
