// jobstatus polls one import job by ID and prints it as JSON. Stale
// processing jobs are expired on the way out, the same as any other
// status read.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/pipeline"
	"github.com/arquivotcm/fichas/internal/repository"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: jobstatus <job-id>")
		os.Exit(2)
	}
	jobID, err := uuid.Parse(flag.Arg(0))
	if err != nil {
		logger.Error("invalid job id", "arg", flag.Arg(0), "error", err)
		os.Exit(2)
	}

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

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	jobs := repository.NewOcrJobRepository(db, cfg.Database.Driver, logger)
	watchdog := pipeline.NewWatchdog(logger, jobs, cfg.StaleAfter())

	job, err := watchdog.GetStatus(ctx, jobID)
	if err != nil {
		logger.Error("loading job", "job_id", jobID, "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		logger.Error("encoding job", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
