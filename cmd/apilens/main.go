package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/apilens-io/apilens/internal/config"
	"github.com/apilens-io/apilens/internal/database"
	"github.com/apilens-io/apilens/internal/geoip"
	"github.com/apilens-io/apilens/internal/handler"
	"github.com/apilens-io/apilens/internal/ingest"
	"github.com/apilens-io/apilens/internal/model"
	"github.com/apilens-io/apilens/internal/queue"
	"github.com/apilens-io/apilens/internal/ratelimit"
	"github.com/apilens-io/apilens/internal/repository"
	"github.com/apilens-io/apilens/internal/server"
	"github.com/apilens-io/apilens/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "apilens: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var nrApp *newrelic.Application
	if cfg.Observability.Enabled {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.Observability.AppName),
			newrelic.ConfigLicense(cfg.Observability.LicenseKey),
		)
		if err != nil {
			return fmt.Errorf("new relic: %w", err)
		}
	}

	if err := database.RunMigrations(ctx, cfg.Database); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	pool, err := database.NewPool(ctx, cfg.Database, logger, cfg.Observability.Enabled)
	if err != nil {
		return fmt.Errorf("database pool: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	defer rdb.Close()

	geo := geoip.Open(cfg.GeoIP.DatabasePath, logger)
	defer geo.Close()

	apps := repository.NewAppRepository(pool)
	consumers := repository.NewConsumerRepository(pool)
	requestLogs := repository.NewRequestLogRepository(pool)
	appLogs := repository.NewApplicationLogRepository(pool)

	queueOpts := queue.Options{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase(),
	}
	requestQueue := queue.New(rdb, "request-logs", queueOpts, logger)
	appLogQueue := queue.New(rdb, "application-logs", queueOpts, logger)

	processor := worker.NewProcessor(consumers, requestLogs, appLogs, geo, nrApp, logger)
	requestWorker := queue.NewWorker(requestQueue, processor.Handle, cfg.Queue.RequestWorkers, logger)
	appLogWorker := queue.NewWorker(appLogQueue, processor.Handle, cfg.Queue.AppLogWorkers, logger)
	requestWorker.Start(ctx)
	appLogWorker.Start(ctx)

	limiter := ratelimit.New(rdb, cfg.Ingest.RateLimitPerMinute, time.Minute)
	svc := ingest.NewService(apps, limiter, requestQueue, appLogQueue, ingest.Limits{
		MaxRequestsPerBatch: cfg.Ingest.MaxRequestsPerBatch,
		MaxLogsPerBatch:     cfg.Ingest.MaxLogsPerBatch,
	}, logger)
	ingestHandler := &handler.IngestHandler{
		Service: svc,
		Queues:  []handler.QueueInspector{requestQueue, appLogQueue},
		Log:     logger,
	}

	srv := server.New(cfg, ingestHandler, logger)
	logger.Info().
		Str("env", cfg.Primary.Env).
		Bool("geoip", geo.Available()).
		Strs("queues", []string{model.JobTypeIngestRequestLogs, model.JobTypeIngestApplicationLogs}).
		Msg("starting apilens")
	err = srv.Start(ctx)

	requestWorker.Stop()
	appLogWorker.Stop()
	return err
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.Primary.Env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
