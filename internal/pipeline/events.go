package pipeline

import (
	"context"
	"time"

	"tickerlink/internal/adapters/kafka"
	"tickerlink/internal/domain/run"
	"tickerlink/pkg/logger"
)

// RunEvent is the per-run summary published when a batch reaches a terminal
// status
type RunEvent struct {
	BatchID    string      `json:"batch_id"`
	Mode       string      `json:"mode"`
	Status     string      `json:"status"`
	Metrics    run.Metrics `json:"metrics"`
	FinishedAt time.Time   `json:"finished_at"`
}

// RunPublisher ships run summaries to the runs topic, keyed by batch ID.
// Publish failures are logged and swallowed; the Postgres audit row is the
// source of truth.
type RunPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewRunPublisher creates a run event publisher
func NewRunPublisher(producer *kafka.Producer) *RunPublisher {
	return &RunPublisher{
		producer: producer,
		log:      logger.Get().With("component", "run_publisher"),
	}
}

// Publish sends one run summary. Uses its own deadline so a summary still
// goes out when the run's context is already canceled during shutdown.
func (p *RunPublisher) Publish(event RunEvent) {
	if event.FinishedAt.IsZero() {
		event.FinishedAt = time.Now().UTC()
	}

	publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.producer.Publish(publishCtx, kafka.TopicPipelineRuns, event.BatchID, event); err != nil {
		p.log.Warnw("Failed to publish run event", "batch_id", event.BatchID, "error", err)
	}
}
