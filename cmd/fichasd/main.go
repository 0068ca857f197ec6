package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/joho/godotenv"

	"github.com/arquivotcm/fichas/internal/async"
	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/ingest"
	"github.com/arquivotcm/fichas/internal/mapping"
	"github.com/arquivotcm/fichas/internal/ocr"
	"github.com/arquivotcm/fichas/internal/pipeline"
	"github.com/arquivotcm/fichas/internal/repository"
	"github.com/arquivotcm/fichas/internal/storage"
	"github.com/arquivotcm/fichas/internal/templates"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	if err := repository.EnsureSchema(ctx, db); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Error("open document store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("close document store", "error", cerr)
		}
	}()

	var gcsClient *gcs.Client
	if cfg.OCR.ScratchBucket != "" {
		gcsClient, err = gcs.NewClient(ctx)
		if err != nil {
			logger.Error("create gcs client", "error", err)
			os.Exit(1)
		}
		defer gcsClient.Close()
	}

	adapter, err := ocr.NewVisionAdapter(cfg.OCR, gcsClient, logger)
	if err != nil {
		logger.Error("configure ocr provider", "error", err)
		os.Exit(1)
	}

	jobsRepo := repository.NewOcrJobRepository(db, cfg.Database.Driver, logger)
	templatesRepo := repository.NewFormTemplateRepository(db, cfg.Database.Driver, logger)
	schemaService := templates.NewService(templatesRepo, logger)
	engine := mapping.NewEngine(logger)

	processor := pipeline.NewProcessor(
		logger, jobsRepo, store, adapter, schemaService, engine,
		ocr.ResolveOptions(cfg.OCR, ocr.Options{}),
	)

	var queue async.Queue
	switch cfg.Worker.Backend {
	case "redis":
		queue, err = async.NewRedisQueue(ctx, cfg.Redis, processor, logger,
			async.RedisWithWorkers(cfg.Worker.Workers),
			async.RedisWithJobTimeout(cfg.JobTimeout()),
		)
		if err != nil {
			logger.Error("connect job queue", "error", err)
			os.Exit(1)
		}
	default:
		queue = async.NewProcessorQueue(processor, logger,
			async.WithWorkers(cfg.Worker.Workers),
			async.WithQueueSize(cfg.Worker.QueueSize),
			async.WithJobTimeout(cfg.JobTimeout()),
		)
	}

	watchdog := pipeline.NewWatchdog(logger, jobsRepo, cfg.StaleAfter())
	go watchdog.Run(ctx, time.Minute)

	if cfg.Ingest.WatchDir != "" {
		intake := pipeline.NewIntake(logger, cfg.OCR, jobsRepo, store, queue)
		ingestor := ingest.NewIngestor(logger, intake, nil)
		go func() {
			err := ingestor.Run(ctx, ingest.WatchConfig{
				Root:        cfg.Ingest.WatchDir,
				InitialScan: cfg.Ingest.InitialScan,
				Debounce:    cfg.Ingest.Debounce,
			})
			if err != nil {
				logger.Error("drop directory watcher stopped", "error", err)
			}
		}()
	}

	logger.Info("fichasd started",
		"queue_backend", cfg.Worker.Backend,
		"workers", cfg.Worker.Workers,
		"job_timeout", cfg.JobTimeout(),
		"watch_dir", cfg.Ingest.WatchDir,
	)

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
