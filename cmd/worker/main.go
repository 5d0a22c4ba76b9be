package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/boxtariffs/boxtariffs/internal/app"
	"github.com/boxtariffs/boxtariffs/internal/export"
	"github.com/boxtariffs/boxtariffs/internal/observability"
	"github.com/boxtariffs/boxtariffs/internal/platform/db"
	"github.com/boxtariffs/boxtariffs/internal/platform/sheets"
	"github.com/boxtariffs/boxtariffs/internal/shared"
	"github.com/boxtariffs/boxtariffs/internal/tariffs"
	"github.com/boxtariffs/boxtariffs/jobs"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var sheetWriter export.SheetWriter
	sheetsClient, err := sheets.NewClient(ctx, cfg.GoogleServiceAccountKeyFile)
	if err != nil {
		logger.Warn("google sheets client unavailable, export disabled",
			slog.String("keyfile", cfg.GoogleServiceAccountKeyFile),
			slog.Any("error", err))
	} else {
		sheetWriter = sheetsClient
	}
	exporter := export.NewExporter(sheetWriter, export.Config{
		SpreadsheetIDs:   cfg.ExportSpreadsheets,
		DestinationDelay: cfg.ExportDestinationDelay,
		Retry:            cfg.RetryOptions(),
	}, logger)

	repo := tariffs.NewRepository(pool, logger)
	wbClient := tariffs.NewClient(cfg.WBAPIBaseURL, cfg.WBAPIToken, cfg.WBHTTPTimeout)
	syncLock := shared.NewSyncLock(redisClient, cfg.SyncLockTTL)

	service := tariffs.NewService(repo, wbClient, exporter, tariffs.ServiceOptions{
		Locker:  syncLock,
		Metrics: metrics,
		Logger:  logger,
		Retry:   cfg.RetryOptions(),
		Sort: tariffs.SortSpec{
			Column:    tariffs.ResolveSortColumn(cfg.ExportSortColumn, logger),
			Ascending: cfg.ExportSortAsc,
		},
		DecimalSeparator: cfg.ExportDecimalSeparator,
	})

	var cron []jobs.CronRegistration
	if cfg.SchedulerEnabled {
		syncTask, err := jobs.NewTariffSyncTask(jobs.TariffSyncPayload{})
		if err != nil {
			logger.Error("build sync task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.SyncCronSpec,
			Task:    syncTask,
			Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)},
		})
	} else {
		logger.Info("scheduler disabled")
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeTariffSync, Handler: jobs.NewTariffSyncHandler(service, logger)},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
