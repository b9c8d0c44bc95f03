package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"tickerlink/internal/domain/candidate"
	"tickerlink/internal/domain/news"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/domain/ticker"
	"tickerlink/internal/metrics"
	"tickerlink/internal/pipeline/generator"
	"tickerlink/pkg/errors"
	"tickerlink/pkg/logger"
)

// Request is the operational entry point of one batch run
type Request struct {
	Mode        run.BatchMode
	BatchSize   int
	RangeStart  *time.Time
	RangeEnd    *time.Time
	SelectedIDs []int64
	Operator    *string
	DryRun      bool
}

// RetryCounter counts oracle retries across backends so runs can report them
type RetryCounter struct {
	n atomic.Int64
}

// Hook returns a retry.Retrier OnRetry callback for the given backend
func (c *RetryCounter) Hook(backend string) func(attempt int, err error) {
	return func(_ int, _ error) {
		c.n.Add(1)
		metrics.BackendRetries.WithLabelValues(backend).Inc()
	}
}

// Snapshot returns the total retry count so far
func (c *RetryCounter) Snapshot() int64 {
	return c.n.Load()
}

// ProcessorConfig wires the processor's collaborators
type ProcessorConfig struct {
	News       news.Repository
	Tickers    ticker.Repository
	Candidates candidate.Repository
	Runs       run.Repository

	// Stats, when set, receives derived per-run analytics.
	Stats run.StatsSink

	Generator *generator.Hybrid
	Pipeline  run.PipelineConfig

	// Retries, when set, feeds oracle retry counts into run metrics.
	Retries *RetryCounter

	// Events, when set, receives a summary per terminal run.
	Events *RunPublisher
}

// Processor drives one batch run end to end: fetch, chunk, generate,
// consolidate, upsert, mark processed, audit.
type Processor struct {
	news       news.Repository
	tickers    ticker.Repository
	candidates candidate.Repository
	runs       run.Repository
	stats      run.StatsSink
	generator  *generator.Hybrid
	cfg        run.PipelineConfig
	retries    *RetryCounter
	events     *RunPublisher

	tickerList  []*ticker.Record
	tickerByID  map[int64]*ticker.Record
	initialized bool
}

// NewProcessor creates an uninitialized processor
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		news:       cfg.News,
		tickers:    cfg.Tickers,
		candidates: cfg.Candidates,
		runs:       cfg.Runs,
		stats:      cfg.Stats,
		generator:  cfg.Generator,
		cfg:        cfg.Pipeline,
		retries:    cfg.Retries,
		events:     cfg.Events,
	}
}

// Initialize loads the ticker universe and prepares every generator index.
// Must be called before the first ProcessBatch and again after reference
// data changes.
func (p *Processor) Initialize(ctx context.Context) error {
	log := logger.Get().With("component", "batch_processor")

	tickers, err := p.tickers.LoadAll(ctx)
	if err != nil {
		return errors.Wrap(err, "load tickers")
	}
	if len(tickers) == 0 {
		log.Warnw("No tickers loaded, pipeline will produce no candidates")
	}

	byID := make(map[int64]*ticker.Record, len(tickers))
	for _, t := range tickers {
		byID[t.ID] = t
	}

	if err := p.generator.Prepare(ctx, tickers, p.cfg); err != nil {
		return errors.Wrap(err, "prepare generators")
	}

	p.tickerList = tickers
	p.tickerByID = byID
	p.initialized = true

	log.Infow("Processor initialized", "tickers", len(tickers))
	return nil
}

// ProcessBatch runs one batch. Fetch and finalize failures mark the run
// failed and return the error; a single item's failure inside a chunk only
// increments the error counter.
func (p *Processor) ProcessBatch(ctx context.Context, req Request, reporter *ProgressReporter) (run.Metrics, error) {
	var m run.Metrics

	if !p.initialized {
		return m, errors.Wrap(errors.ErrNotInitialized, "batch processor")
	}
	if !req.Mode.Valid() {
		return m, errors.Wrapf(errors.ErrInvalidInput, "unknown batch mode %q", req.Mode)
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = p.cfg.BatchSize
	}
	dryRun := req.DryRun || p.cfg.DryRun

	log := logger.Get().With("component", "batch_processor", "mode", req.Mode.String())
	start := time.Now()
	var retriesBefore int64
	if p.retries != nil {
		retriesBefore = p.retries.Snapshot()
	}

	batchID, err := p.runs.Create(ctx, req.Mode, batchSize, 0, p.cfg.Version, req.Operator)
	if err != nil {
		return m, errors.Wrap(err, "create processing run")
	}
	log = log.With("batch_id", batchID)

	fail := func(cause error) (run.Metrics, error) {
		m.Errors++
		m.DurationSeconds = time.Since(start).Seconds()
		if completeErr := p.runs.Complete(ctx, batchID, run.StatusFailed, m, m.ChunkCount); completeErr != nil {
			log.Errorw("Failed to mark run as failed", "error", completeErr)
		}
		metrics.RecordRun(req.Mode.String(), string(run.StatusFailed), time.Since(start))
		p.publishRunEvent(batchID, req.Mode, run.StatusFailed, m)
		return m, cause
	}

	items, err := p.news.FetchBatch(ctx, news.BatchRequest{
		Mode:        req.Mode,
		BatchSize:   batchSize,
		RangeStart:  req.RangeStart,
		RangeEnd:    req.RangeEnd,
		SelectedIDs: req.SelectedIDs,
	})
	if err != nil {
		return fail(errors.Wrap(err, "fetch news batch"))
	}

	m.TotalNews = len(items)
	if err := p.runs.UpdateActualSize(ctx, batchID, len(items)); err != nil {
		log.Warnw("Failed to record actual batch size", "error", err)
	}

	if len(items) == 0 {
		log.Infow("No news items to process")
		m.DurationSeconds = time.Since(start).Seconds()
		if err := p.runs.Complete(ctx, batchID, run.StatusCompleted, m, 0); err != nil {
			return m, errors.Wrap(err, "complete empty run")
		}
		metrics.RecordRun(req.Mode.String(), string(run.StatusCompleted), time.Since(start))
		p.publishRunEvent(batchID, req.Mode, run.StatusCompleted, m)
		return m, nil
	}

	chunkSize := p.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = len(items)
	}

	processedIDs := make([]int64, 0, len(items))
	for chunkStart := 0; chunkStart < len(items); chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(items) {
			chunkEnd = len(items)
		}
		chunk := items[chunkStart:chunkEnd]

		log.Infow("Processing chunk", "from", chunkStart+1, "to", chunkEnd, "total", len(items))

		chunkMetrics := p.processChunk(ctx, chunk, batchID)
		m.Add(chunkMetrics)
		m.ChunkCount++
		metrics.ChunksProcessed.Inc()

		for _, item := range chunk {
			processedIDs = append(processedIDs, item.ID)
		}

		if reporter != nil {
			reporter.Report(ProgressEvent{
				Stage:   "processing",
				Current: chunkEnd,
				Total:   len(items),
				Message: fmt.Sprintf("Processed %d/%d news items", chunkEnd, len(items)),
				Metadata: map[string]string{
					"batch_id": batchID,
					"chunk":    fmt.Sprintf("%d", m.ChunkCount),
				},
			})
		}
	}

	if !dryRun {
		if err := p.news.MarkProcessed(ctx, processedIDs, batchID, p.cfg.Version); err != nil {
			return fail(errors.Wrap(err, "mark news processed"))
		}
	}

	if p.retries != nil {
		m.Retries = int(p.retries.Snapshot() - retriesBefore)
	}
	m.DurationSeconds = time.Since(start).Seconds()

	status := run.StatusCompleted
	if m.Errors > 0 {
		status = run.StatusCompletedWithErrors
	}
	if err := p.runs.Complete(ctx, batchID, status, m, m.ChunkCount); err != nil {
		return fail(errors.Wrap(err, "complete processing run"))
	}
	metrics.RecordRun(req.Mode.String(), string(status), time.Since(start))

	p.publishStats(ctx, batchID, m)
	p.publishRunEvent(batchID, req.Mode, status, m)

	log.Infow("Batch processing completed",
		"processed", m.ProcessedNews,
		"candidates", m.CandidatesGenerated,
		"auto_applied", m.AutoApplied,
		"errors", m.Errors,
		"duration_seconds", m.DurationSeconds,
	)

	return m, nil
}

// processChunk handles one chunk with per-item error isolation. Generator
// inference runs over the whole chunk at once so the embedding backend sees
// one batched call.
func (p *Processor) processChunk(ctx context.Context, chunk []*news.Item, batchID string) run.Metrics {
	var m run.Metrics
	log := logger.Get().With("component", "batch_processor", "batch_id", batchID)

	signalMaps, err := p.generator.BatchGenerate(ctx, chunk, p.tickerList, p.cfg)
	if err != nil {
		// Degraded path: per-item generation, so one bad chunk call does not
		// cost the whole chunk.
		log.Warnw("Chunk generation failed, falling back to per-item generation", "error", err)
		signalMaps = nil
	}

	for i, item := range chunk {
		var signals map[int64]candidate.Signal
		if signalMaps != nil {
			signals = signalMaps[i]
		} else {
			signals, err = p.generator.Generate(ctx, item, p.tickerList, p.cfg)
			if err != nil {
				log.Errorw("Failed to generate candidates", "news_id", item.ID, "error", err)
				m.Errors++
				metrics.ItemErrors.Inc()
				continue
			}
		}

		if err := p.processItem(ctx, item, signals, batchID, &m); err != nil {
			log.Errorw("Failed to process news item", "news_id", item.ID, "error", err)
			m.Errors++
			metrics.ItemErrors.Inc()
			continue
		}

		m.ProcessedNews++
		metrics.NewsProcessed.Inc()
	}

	return m
}

// processItem consolidates signals into candidates and upserts each one
func (p *Processor) processItem(ctx context.Context, item *news.Item, signals map[int64]candidate.Signal, batchID string, m *run.Metrics) error {
	for tickerID, signal := range signals {
		t, ok := p.tickerByID[tickerID]
		if !ok {
			continue
		}
		if signal.Score < p.cfg.ReviewLowerThreshold {
			continue
		}

		autoApply := signal.Score >= p.cfg.AutoApplyThreshold && p.cfg.AutoApplyConfirm

		tc := &candidate.TickerCandidate{
			Ticker:         t,
			AggregateScore: signal.Score,
			Signals:        []candidate.Signal{signal},
			AutoApply:      autoApply,
		}

		comparison, err := p.candidates.Upsert(ctx, tc.ToRecord(item.ID, batchID), p.cfg)
		if err != nil {
			return errors.Wrapf(err, "upsert candidate (%d,%d)", item.ID, tickerID)
		}

		metrics.CandidateOutcomes.WithLabelValues(comparison.Reason).Inc()
		if comparison.Updated {
			m.CandidatesGenerated++
			if autoApply {
				m.AutoApplied++
				metrics.CandidatesAutoApplied.Inc()
			}
		} else {
			m.SkippedDuplicates++
		}
	}

	return nil
}

// publishStats ships derived analytics to the stats sink. Failures are
// logged, never fatal; the Postgres audit row is the source of truth.
func (p *Processor) publishStats(ctx context.Context, batchID string, m run.Metrics) {
	if p.stats == nil {
		return
	}

	perf := run.DerivePerformance(m, batchID, time.Now().UTC())
	if err := p.stats.InsertRunStats(ctx, &perf); err != nil {
		logger.Get().With("component", "batch_processor", "batch_id", batchID).
			Warnw("Failed to publish run stats", "error", err)
	}
}

func (p *Processor) publishRunEvent(batchID string, mode run.BatchMode, status run.Status, m run.Metrics) {
	if p.events == nil {
		return
	}

	p.events.Publish(RunEvent{
		BatchID: batchID,
		Mode:    mode.String(),
		Status:  string(status),
		Metrics: m,
	})
}

// ResetProcessed clears processed flags so the items become eligible for
// unprocessed runs again. Operator tooling entry point.
func (p *Processor) ResetProcessed(ctx context.Context, newsIDs []int64) error {
	return p.news.ResetProcessedFlags(ctx, newsIDs)
}
