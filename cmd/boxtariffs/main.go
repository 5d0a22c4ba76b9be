package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/boxtariffs/boxtariffs/cmd/boxtariffs/cli"
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

	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, cfg, logger, service, os.Args[1:]))
	}

	tariffsHandler := tariffs.NewHandler(logger, service)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		TariffsHandler: tariffsHandler,
		JobsHandler:    jobsHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, service *tariffs.Service, args []string) int {
	arg := func(i int) string {
		if len(args) > i {
			return args[i]
		}
		return ""
	}

	switch args[0] {
	case "sync":
		if err := cli.RunSync(ctx, service, logger, arg(1)); err != nil {
			logger.Error("sync command", slog.Any("error", err))
			return 1
		}
	case "export":
		if err := cli.RunExport(ctx, service, logger, arg(1)); err != nil {
			logger.Error("export command", slog.Any("error", err))
			return 1
		}
	case "jobs":
		if err := runJobsCommand(ctx, cfg, arg(1), arg(2)); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			return 1
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected sync, export or jobs)\n", args[0])
		return 2
	}
	return 0
}

func runJobsCommand(ctx context.Context, cfg *app.Config, action, date string) error {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = jobsCLI.Close() }()

	switch action {
	case "trigger":
		info, err := jobsCLI.Trigger(ctx, date)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats", "":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	default:
		return fmt.Errorf("unknown jobs action %q (expected trigger or stats)", action)
	}
}
