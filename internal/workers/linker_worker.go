package workers

import (
	"context"
	"time"

	"tickerlink/internal/domain/run"
	"tickerlink/internal/metrics"
	"tickerlink/internal/pipeline"
)

// LinkerWorker periodically drains the unprocessed news backlog through the
// candidate pipeline and flags runs that look crashed.
type LinkerWorker struct {
	*BaseWorker

	processor *pipeline.Processor
	runs      run.Repository
	reporter  *pipeline.ProgressReporter

	staleCutoff time.Duration
}

// NewLinkerWorker creates a new linker worker
func NewLinkerWorker(
	processor *pipeline.Processor,
	runs run.Repository,
	reporter *pipeline.ProgressReporter,
	interval time.Duration,
	staleCutoff time.Duration,
	enabled bool,
) *LinkerWorker {
	return &LinkerWorker{
		BaseWorker:  NewBaseWorker("news_linker", interval, enabled),
		processor:   processor,
		runs:        runs,
		reporter:    reporter,
		staleCutoff: staleCutoff,
	}
}

// Run executes one backlog iteration
func (w *LinkerWorker) Run(ctx context.Context) error {
	start := time.Now()

	w.reportStaleRuns(ctx)

	m, err := w.processor.ProcessBatch(ctx, pipeline.Request{
		Mode: run.ModeOnlyUnprocessed,
	}, w.reporter)
	if err != nil {
		w.RecordError(err, time.Since(start))
		return err
	}

	if m.TotalNews > 0 {
		w.Log().Infow("Backlog iteration finished",
			"processed", m.ProcessedNews,
			"candidates", m.CandidatesGenerated,
			"errors", m.Errors,
		)
	}

	w.RecordRun(time.Since(start))
	return nil
}

// reportStaleRuns surfaces runs stuck in running state past the cutoff.
// A stale run means a crashed worker; the row is left for an operator to
// restart or resume.
func (w *LinkerWorker) reportStaleRuns(ctx context.Context) {
	if w.staleCutoff <= 0 {
		return
	}

	stale, err := w.runs.ListStale(ctx, time.Now().Add(-w.staleCutoff))
	if err != nil {
		w.Log().Warnw("Failed to list stale runs", "error", err)
		return
	}

	metrics.StaleRuns.Set(float64(len(stale)))
	for _, r := range stale {
		w.Log().Warnw("Stale processing run detected",
			"batch_id", r.BatchID,
			"mode", r.Mode,
			"started_at", r.StartedAt,
		)
	}
}
