package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	chclient "tickerlink/internal/adapters/clickhouse"
	"tickerlink/internal/adapters/config"
	"tickerlink/internal/adapters/embeddings"
	"tickerlink/internal/adapters/errors/noop"
	"tickerlink/internal/adapters/errors/sentry"
	"tickerlink/internal/adapters/kafka"
	"tickerlink/internal/adapters/ner"
	pgclient "tickerlink/internal/adapters/postgres"
	redisclient "tickerlink/internal/adapters/redis"
	"tickerlink/internal/domain/run"
	"tickerlink/internal/metrics"
	"tickerlink/internal/pipeline"
	"tickerlink/internal/pipeline/generator"
	chrepo "tickerlink/internal/repository/clickhouse"
	pgrepo "tickerlink/internal/repository/postgres"
	"tickerlink/internal/workers"
	"tickerlink/pkg/errors"
	"tickerlink/pkg/logger"
	"tickerlink/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres is mandatory; everything else degrades gracefully.
	pg, err := pgclient.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pg.Close()

	if err := pgrepo.EnsureSchema(ctx, pg.DB()); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	newsRepo := pgrepo.NewNewsRepository(pg.DB())
	tickerRepo := pgrepo.NewTickerRepository(pg.DB())
	candidateRepo := pgrepo.NewCandidateRepository(pg.DB())
	runRepo := pgrepo.NewRunRepository(pg.DB())

	var statsSink run.StatsSink
	if cfg.ClickHouse.Enabled {
		ch, err := chclient.NewClient(cfg.ClickHouse)
		if err != nil {
			log.Warnf("ClickHouse unavailable, run analytics disabled: %v", err)
		} else {
			defer ch.Close()
			runStats := chrepo.NewRunStatsRepository(ch.Conn())
			if err := runStats.EnsureSchema(ctx); err != nil {
				log.Warnf("Failed to ensure ClickHouse schema: %v", err)
			} else {
				statsSink = runStats
			}
		}
	}

	var cache *redisclient.Client
	if cfg.Redis.Enabled {
		cache, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warnf("Redis unavailable, embedding cache disabled: %v", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	reporter := pipeline.NewProgressReporter(
		time.Duration(cfg.Pipeline.ProgressRefreshInterval * float64(time.Second)),
	)
	reporter.Subscribe(pipeline.LoggingObserver())

	var runPublisher *pipeline.RunPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
		defer producer.Close()
		reporter.Subscribe(pipeline.KafkaObserver(producer))
		runPublisher = pipeline.NewRunPublisher(producer)
	}

	embeddingProvider, err := embeddings.NewProvider(embeddings.Config{
		Provider: embeddings.ProviderType(cfg.Embeddings.Provider),
		APIKey:   cfg.Embeddings.APIKey,
		Model:    cfg.Embeddings.Model,
		Timeout:  cfg.Embeddings.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to init embedding provider: %v", err)
	}

	retries := &pipeline.RetryCounter{}
	retryConfig := retry.Config{
		MaxRetries:   cfg.Pipeline.MaxRetries,
		InitialDelay: time.Duration(cfg.Pipeline.RetryBackoffSeconds * float64(time.Second)),
	}

	embeddingRetrier := retry.New(retryConfig)
	embeddingRetrier.OnRetry = retries.Hook("embedding")

	limiter := rate.NewLimiter(rate.Limit(cfg.Embeddings.RateLimit), cfg.Embeddings.RateBurst)
	embeddingService := pipeline.NewEmbeddingService(embeddingProvider, tickerRepo, cache, limiter, embeddingRetrier)

	var nerProvider ner.Provider
	if cfg.NER.Enabled {
		nerProvider = ner.NewHTTPProvider(cfg.NER.BaseURL, cfg.NER.Timeout)
	}
	nerRetrier := retry.New(retryConfig)
	nerRetrier.OnRetry = retries.Hook("ner")

	hybrid := generator.NewHybrid(1.0,
		generator.NewSubstring(generator.WeightSubstring),
		generator.NewFuzzy(generator.WeightFuzzy),
		generator.NewNER(generator.WeightNER, nerProvider, nerRetrier),
		generator.NewEmbedding(generator.WeightEmbedding, embeddingService),
	)

	processor := pipeline.NewProcessor(pipeline.ProcessorConfig{
		News:       newsRepo,
		Tickers:    tickerRepo,
		Candidates: candidateRepo,
		Runs:       runRepo,
		Stats:      statsSink,
		Generator:  hybrid,
		Pipeline:   cfg.Pipeline,
		Retries:    retries,
		Events:     runPublisher,
	})

	if err := processor.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize processor: %v", err)
	}

	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(workers.NewLinkerWorker(
		processor,
		runRepo,
		reporter,
		cfg.Workers.LinkerInterval,
		cfg.Workers.StaleRunCutoff,
		cfg.Workers.LinkerEnabled,
	))

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	metricsServer := startMetricsServer(cfg.App.MetricsAddr, log)

	log.Info("System initialized successfully")

	waitForShutdown(cancel, scheduler, metricsServer, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// startMetricsServer exposes Prometheus metrics
func startMetricsServer(addr string, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Infof("Metrics server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()

	return server
}

// waitForShutdown waits for a shutdown signal and stops components in order
func waitForShutdown(
	cancel context.CancelFunc,
	scheduler *workers.Scheduler,
	metricsServer *http.Server,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Infof("Received signal %s, shutting down...", sig)
	cancel()

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Scheduler shutdown: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Metrics server shutdown: %v", err)
	}
	if err := errorTracker.Flush(shutdownCtx); err != nil {
		log.Warnf("Error tracker flush: %v", err)
	}

	log.Info("Shutdown complete")
}
