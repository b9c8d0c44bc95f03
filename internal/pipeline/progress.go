package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"tickerlink/internal/adapters/kafka"
	"tickerlink/pkg/logger"
)

// ProgressEvent is one snapshot of run progress
type ProgressEvent struct {
	Stage     string            `json:"stage"`
	Current   int               `json:"current"`
	Total     int               `json:"total"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Percent returns progress as a percentage
func (e ProgressEvent) Percent() float64 {
	if e.Total == 0 {
		return 0
	}
	return float64(e.Current) / float64(e.Total) * 100.0
}

// Complete reports whether the event marks the final unit of work
func (e ProgressEvent) Complete() bool {
	return e.Current >= e.Total
}

// ProgressObserver receives throttled progress events
type ProgressObserver func(event ProgressEvent)

// ProgressReporter fans throttled progress events out to observers.
// Safe for concurrent use.
type ProgressReporter struct {
	refreshInterval time.Duration

	mu        sync.Mutex
	lastAt    time.Time
	lastEvent *ProgressEvent
	observers []ProgressObserver
}

// NewProgressReporter creates a reporter that emits at most one event per
// refresh interval
func NewProgressReporter(refreshInterval time.Duration) *ProgressReporter {
	if refreshInterval <= 0 {
		refreshInterval = 500 * time.Millisecond
	}
	return &ProgressReporter{refreshInterval: refreshInterval}
}

// Subscribe registers an observer
func (r *ProgressReporter) Subscribe(observer ProgressObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, observer)
}

// Report publishes an event unless the refresh interval has not elapsed
// since the last published event
func (r *ProgressReporter) Report(event ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	if time.Since(r.lastAt) < r.refreshInterval {
		r.mu.Unlock()
		return
	}
	r.lastAt = time.Now()
	r.lastEvent = &event
	observers := make([]ProgressObserver, len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, observer := range observers {
		observer(event)
	}
}

// LastEvent returns the most recently published event, if any
func (r *ProgressReporter) LastEvent() *ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastEvent
}

// Reset clears throttle state so the next event publishes immediately
func (r *ProgressReporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastAt = time.Time{}
	r.lastEvent = nil
}

// LoggingObserver logs progress events through the structured logger
func LoggingObserver() ProgressObserver {
	log := logger.Get().With("component", "pipeline_progress")
	return func(event ProgressEvent) {
		log.Infow("Progress",
			"stage", event.Stage,
			"done", humanize.Comma(int64(event.Current)),
			"total", humanize.Comma(int64(event.Total)),
			"percent", event.Percent(),
			"message", event.Message,
		)
	}
}

// KafkaObserver publishes progress events to the pipeline progress topic,
// keyed by batch ID so consumers see per-run ordering
func KafkaObserver(producer *kafka.Producer) ProgressObserver {
	log := logger.Get().With("component", "pipeline_progress")
	return func(event ProgressEvent) {
		key := event.Metadata["batch_id"]
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := producer.Publish(ctx, kafka.TopicPipelineProgress, key, event); err != nil {
			log.Warnw("Failed to publish progress event", "error", err)
		}
	}
}
