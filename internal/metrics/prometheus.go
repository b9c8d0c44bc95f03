package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Run metrics
	RunsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerlink_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"mode", "status"}, // status: completed|completed_with_errors|failed
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tickerlink_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"mode"},
	)

	NewsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tickerlink_news_processed_total",
			Help: "Total number of news items processed",
		},
	)

	ChunksProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tickerlink_chunks_processed_total",
			Help: "Total number of chunks processed",
		},
	)

	// Candidate metrics
	CandidateOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerlink_candidate_outcomes_total",
			Help: "Candidate upsert outcomes",
		},
		[]string{"reason"}, // reason: inserted|score_improved|score_not_improved|confirmed_locked
	)

	CandidatesAutoApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tickerlink_candidates_auto_applied_total",
			Help: "Candidates flagged for automatic acceptance",
		},
	)

	// Backend metrics
	BackendCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerlink_backend_calls_total",
			Help: "Calls to the embedding/NER oracles",
		},
		[]string{"backend", "status"}, // backend: embedding|ner; status: success|error
	)

	BackendRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerlink_backend_retries_total",
			Help: "Retried calls to the embedding/NER oracles",
		},
		[]string{"backend"},
	)

	ItemErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tickerlink_item_errors_total",
			Help: "News items skipped due to per-item processing errors",
		},
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerlink_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tickerlink_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickerlink_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	StaleRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tickerlink_stale_runs",
			Help: "Runs stuck in running state past the stale cutoff",
		},
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(RunsStarted)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(NewsProcessed)
	prometheus.MustRegister(ChunksProcessed)

	prometheus.MustRegister(CandidateOutcomes)
	prometheus.MustRegister(CandidatesAutoApplied)

	prometheus.MustRegister(BackendCalls)
	prometheus.MustRegister(BackendRetries)
	prometheus.MustRegister(ItemErrors)

	prometheus.MustRegister(WorkerExecutions)
	prometheus.MustRegister(WorkerDuration)
	prometheus.MustRegister(WorkerLastRun)
	prometheus.MustRegister(StaleRuns)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordBackendCall records one embedding/NER oracle call and its outcome
func RecordBackendCall(backend string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	BackendCalls.WithLabelValues(backend, status).Inc()
}

// RecordRun records a completed pipeline run
func RecordRun(mode string, status string, duration time.Duration) {
	RunsStarted.WithLabelValues(mode, status).Inc()
	RunDuration.WithLabelValues(mode).Observe(duration.Seconds())
}
