package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/joho/godotenv"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
	"github.com/arquivotcm/fichas/internal/export"
	"github.com/arquivotcm/fichas/internal/mapping"
	"github.com/arquivotcm/fichas/internal/ocr"
	"github.com/arquivotcm/fichas/internal/templates"
)

// runocr pushes one local file through the OCR adapter and the mapping
// engine without touching the database: a debugging aid for tuning
// extraction against real scans.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	schemaPath := flag.String("schema", "", "optional template schema JSON file")
	mimeType := flag.String("mime", "", "override the detected mime type")
	xlsxPath := flag.String("xlsx", "", "also write the suggestions as an XLSX review sheet")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: runocr [-schema schema.json] [-mime type] [-xlsx out.xlsx] <file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
	cfg := common.LoadConfig()

	fileBytes, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read input file", "path", path, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.JobTimeout())
	defer cancel()

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

	start := time.Now()
	result, err := adapter.Extract(ctx, fileBytes, *mimeType, filepath.Base(path), ocr.ResolveOptions(cfg.OCR, ocr.Options{}))
	if err != nil {
		logger.Error("ocr extraction failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ocr done", "chars", len(result.Text), "lines", len(result.Items), "duration", time.Since(start))

	schema, err := loadSchema(*schemaPath, logger)
	if err != nil {
		logger.Error("load schema", "error", err)
		os.Exit(1)
	}

	engine := mapping.NewEngine(logger)
	suggestions := engine.MapFields(result.Text, result.Items, schema)

	out, err := json.MarshalIndent(suggestions, "", "  ")
	if err != nil {
		logger.Error("encode suggestions", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if *xlsxPath != "" {
		sheet, rows, err := export.SuggestionsWorkbook(suggestions)
		if err != nil {
			logger.Error("build review sheet", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*xlsxPath, sheet, 0o644); err != nil {
			logger.Error("write review sheet", "path", *xlsxPath, "error", err)
			os.Exit(1)
		}
		logger.Info("review sheet written", "path", *xlsxPath, "rows", rows)
	}
}

func loadSchema(path string, logger *slog.Logger) (*entity.FormSchema, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	svc := templates.NewService(nil, logger)
	return svc.ParseSchema(raw)
}
