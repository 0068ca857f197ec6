package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
)

// Options carry the per-call provider settings, resolved from config with
// optional per-job overrides.
type Options struct {
	LanguageHints  []string
	MaxPages       int
	TimeoutSeconds int
	Retries        int
}

// Result is what any OCR backend returns: plain text, per-line items with
// confidences, and the provider's raw payload kept for auditing.
type Result struct {
	Text  string
	Items []entity.OcrTextItem
	Raw   json.RawMessage
}

// Adapter is the recognition boundary. Implementations must be safe for
// concurrent use across pipeline workers.
type Adapter interface {
	Extract(ctx context.Context, fileBytes []byte, mimeType, filename string, opts Options) (*Result, error)
}

// ResolveOptions fills unset option fields from the loaded config.
func ResolveOptions(cfg common.OCRConfig, opts Options) Options {
	if len(opts.LanguageHints) == 0 {
		opts.LanguageHints = parseLanguageHints(cfg.LanguageHints)
	}
	if opts.MaxPages == 0 {
		opts.MaxPages = cfg.MaxPages
	}
	if opts.MaxPages < 0 {
		opts.MaxPages = 0
	}
	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = cfg.TimeoutSeconds
	}
	if opts.Retries <= 0 {
		opts.Retries = cfg.Retries
	}
	return opts
}

func parseLanguageHints(value string) []string {
	var hints []string
	for _, h := range strings.Split(value, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hints = append(hints, h)
		}
	}
	return hints
}

// ValidateConfig checks the provider settings before any network call.
// requireBucket is set when the input is PDF/TIFF, which needs the GCS
// scratch bucket for async annotation.
func ValidateConfig(cfg common.OCRConfig, requireBucket bool) error {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider != "google_vision" {
		return common.ConfigurationError(fmt.Sprintf("OCR provider nao suportado: %s.", provider))
	}
	if cfg.VisionAPIKey == "" {
		return common.ConfigurationError("GOOGLE_VISION_API_KEY is required")
	}
	if requireBucket && cfg.ScratchBucket == "" {
		return common.ConfigurationError("GCS_OCR_BUCKET obrigatorio para OCR de PDF/TIFF.")
	}
	return nil
}
