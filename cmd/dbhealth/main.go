// dbhealth opens the configured database, applies the schema and reports
// round-trip latency. Exit code 0 means the database is usable.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/repository"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		logger.Error("DB_URL env var is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)
	connectLatency := time.Since(start)

	start = time.Now()
	if err := repository.EnsureSchema(ctx, db); err != nil {
		logger.Error("ensuring schema", "error", err)
		os.Exit(1)
	}

	logger.Info("database healthy",
		"driver", cfg.Database.Driver,
		"connect", connectLatency,
		"schema", time.Since(start),
	)
}
