package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/motoparts/motoparts/internal/app"
	"github.com/motoparts/motoparts/internal/inventory"
	jobmetrics "github.com/motoparts/motoparts/internal/jobs"
	"github.com/motoparts/motoparts/internal/platform/db"
	"github.com/motoparts/motoparts/internal/platform/kafka"
	"github.com/motoparts/motoparts/internal/shared"
	"github.com/motoparts/motoparts/jobs"
)

const claimRetention = 7 * 24 * time.Hour

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	producer, err := kafka.Dial(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	if err != nil {
		logger.Error("connect kafka", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	claims := shared.NewIdempotencyStore(pool)

	// The scan only reads, so the service runs without audit or cache ports.
	inventoryService := inventory.NewService(inventory.NewRepository(pool), nil, jobClient, nil, logger)

	relayJob := jobs.NewEventRelayJob(claims, producer, logger, metrics)
	lowStockJob := jobs.NewLowStockScanJob(inventoryService, jobClient, cfg.LowStockThreshold, logger, metrics)

	lowStockTask, err := jobs.NewLowStockScanTask(0)
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEventRelay, Handler: relayJob.Handle},
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockCron, Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	go pruneClaims(ctx, claims, logger)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func pruneClaims(ctx context.Context, claims *shared.IdempotencyStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := claims.Cleanup(ctx, claimRetention)
			if err != nil {
				logger.Warn("prune relay claims", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Info("pruned relay claims", slog.Int64("removed", removed))
			}
		}
	}
}
