package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/arquivotcm/fichas/internal/common"
	"github.com/arquivotcm/fichas/internal/entity"
)

const (
	defaultVisionEndpoint = "https://vision.googleapis.com/v1"
	asyncBatchSize        = 20
	maxRetryBackoff       = 8 * time.Second
	operationPollEvery    = 3 * time.Second
)

// VisionAdapter talks to the Google Vision REST API with an API key.
// Images go through the synchronous images:annotate endpoint; PDF and
// TIFF inputs are staged in a GCS scratch bucket and annotated
// asynchronously. The adapter is safe for concurrent use.
type VisionAdapter struct {
	apiKey        string
	scratchBucket string
	endpoint      string
	httpClient    *http.Client
	gcsClient     *gcs.Client
	logger        *slog.Logger
}

func NewVisionAdapter(cfg common.OCRConfig, gcsClient *gcs.Client, logger *slog.Logger) (*VisionAdapter, error) {
	if err := ValidateConfig(cfg, false); err != nil {
		return nil, err
	}
	return &VisionAdapter{
		apiKey:        cfg.VisionAPIKey,
		scratchBucket: cfg.ScratchBucket,
		endpoint:      defaultVisionEndpoint,
		httpClient:    &http.Client{},
		gcsClient:     gcsClient,
		logger:        logger,
	}, nil
}

// request/response shapes for the REST surface, trimmed to what we read.

type visionAnnotateRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image        visionImage     `json:"image"`
	Features     []visionFeature `json:"features"`
	ImageContext *visionContext  `json:"imageContext,omitempty"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type visionAnnotateResponse struct {
	Responses []visionPageResponse `json:"responses"`
}

type visionPageResponse struct {
	FullTextAnnotation *visionFullText   `json:"fullTextAnnotation"`
	TextAnnotations    []visionTextAnnot `json:"textAnnotations"`
	Error              *visionStatus     `json:"error"`
}

type visionTextAnnot struct {
	Description string `json:"description"`
}

type visionStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type visionFullText struct {
	Text  string       `json:"text"`
	Pages []visionPage `json:"pages"`
}

type visionPage struct {
	Blocks []visionBlock `json:"blocks"`
}

type visionBlock struct {
	Paragraphs []visionParagraph `json:"paragraphs"`
}

type visionParagraph struct {
	Words []visionWord `json:"words"`
}

type visionWord struct {
	Symbols    []visionSymbol `json:"symbols"`
	Confidence float64        `json:"confidence"`
}

type visionSymbol struct {
	Text string `json:"text"`
}

type asyncAnnotateRequest struct {
	Requests []asyncFileRequest `json:"requests"`
}

type asyncFileRequest struct {
	InputConfig  asyncInputConfig  `json:"inputConfig"`
	Features     []visionFeature   `json:"features"`
	ImageContext *visionContext    `json:"imageContext,omitempty"`
	OutputConfig asyncOutputConfig `json:"outputConfig"`
	Pages        []int             `json:"pages,omitempty"`
}

type asyncInputConfig struct {
	GcsSource asyncGcsSource `json:"gcsSource"`
	MimeType  string         `json:"mimeType"`
}

type asyncGcsSource struct {
	URI string `json:"uri"`
}

type asyncOutputConfig struct {
	GcsDestination asyncGcsDestination `json:"gcsDestination"`
	BatchSize      int                 `json:"batchSize"`
}

type asyncGcsDestination struct {
	URI string `json:"uri"`
}

type visionOperation struct {
	Name  string        `json:"name"`
	Done  bool          `json:"done"`
	Error *visionStatus `json:"error"`
}

// Extract implements the Adapter boundary: bytes in, text plus per-line
// confidences out. Configuration problems are reported before any network
// call; provider failures are surfaced after the retry budget.
func (v *VisionAdapter) Extract(ctx context.Context, fileBytes []byte, mimeType, filename string, opts Options) (*Result, error) {
	if len(fileBytes) == 0 {
		return nil, common.ConfigurationError("Arquivo vazio.")
	}
	normalized := NormalizeMimeType(mimeType, filename)
	if normalized == "image/heic" || normalized == "image/heif" {
		return nil, common.ConfigurationError("Arquivo HEIC nao suportado no momento.")
	}
	if IsPDFLike(normalized, filename) {
		if v.scratchBucket == "" {
			return nil, common.ConfigurationError("GCS_OCR_BUCKET obrigatorio para OCR de PDF/TIFF.")
		}
		return v.extractDocument(ctx, fileBytes, normalized, opts)
	}
	return v.extractImage(ctx, fileBytes, normalized, opts)
}

func (v *VisionAdapter) extractImage(ctx context.Context, fileBytes []byte, mimeType string, opts Options) (*Result, error) {
	req := visionAnnotateRequest{
		Requests: []visionImageRequest{{
			Image:        visionImage{Content: base64.StdEncoding.EncodeToString(fileBytes)},
			Features:     []visionFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
			ImageContext: languageContext(opts.LanguageHints),
		}},
	}

	var resp visionAnnotateResponse
	err := v.withRetries(ctx, "image", opts.Retries, func() error {
		return v.post(ctx, "/images:annotate", req, &resp, opts)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Responses) == 0 {
		return nil, common.ProviderError("vision returned no responses", nil)
	}
	page := resp.Responses[0]
	if page.Error != nil && page.Error.Message != "" {
		return nil, common.ProviderError(page.Error.Message, nil)
	}

	text := strings.TrimSpace(fullText(page))
	var words []wordToken
	if page.FullTextAnnotation != nil {
		words = collectWords(page.FullTextAnnotation)
	}
	raw, _ := json.Marshal(page.FullTextAnnotation)
	return &Result{Text: text, Items: buildLineItems(text, words), Raw: raw}, nil
}

// extractDocument stages the file under ocr-input/ in the scratch bucket,
// runs the async batch annotation and gathers the JSON outputs from
// ocr-output/. Scratch objects are removed best-effort afterwards.
func (v *VisionAdapter) extractDocument(ctx context.Context, fileBytes []byte, mimeType string, opts Options) (*Result, error) {
	suffix := ".tiff"
	if strings.HasPrefix(mimeType, "application/pdf") {
		suffix = ".pdf"
	}
	objectID := strings.ReplaceAll(uuid.New().String(), "-", "")
	inputName := fmt.Sprintf("ocr-input/%s%s", objectID, suffix)
	outputPrefix := fmt.Sprintf("ocr-output/%s/", objectID)

	bucket := v.gcsClient.Bucket(v.scratchBucket)
	w := bucket.Object(inputName).NewWriter(ctx)
	w.ContentType = mimeType
	if _, err := w.Write(fileBytes); err != nil {
		_ = w.Close()
		return nil, common.ProviderError("upload ocr input", err)
	}
	if err := w.Close(); err != nil {
		return nil, common.ProviderError("upload ocr input", err)
	}
	defer v.cleanupScratch(inputName, outputPrefix)

	req := asyncAnnotateRequest{
		Requests: []asyncFileRequest{{
			InputConfig: asyncInputConfig{
				GcsSource: asyncGcsSource{URI: fmt.Sprintf("gs://%s/%s", v.scratchBucket, inputName)},
				MimeType:  mimeType,
			},
			Features:     []visionFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
			ImageContext: languageContext(opts.LanguageHints),
			OutputConfig: asyncOutputConfig{
				GcsDestination: asyncGcsDestination{URI: fmt.Sprintf("gs://%s/%s", v.scratchBucket, outputPrefix)},
				BatchSize:      asyncBatchSize,
			},
			Pages: pageRange(opts.MaxPages),
		}},
	}

	err := v.withRetries(ctx, "pdf", opts.Retries, func() error {
		var op visionOperation
		if err := v.post(ctx, "/files:asyncBatchAnnotate", req, &op, opts); err != nil {
			return err
		}
		return v.awaitOperation(ctx, op.Name, opts)
	})
	if err != nil {
		return nil, err
	}

	pages, err := v.gatherOutputs(ctx, outputPrefix)
	if err != nil {
		return nil, err
	}

	var (
		texts    []string
		items    []entity.OcrTextItem
		rawPages []*visionFullText
	)
	for _, page := range pages {
		if page.Error != nil {
			v.logger.Warn("ocr pdf page error", "code", page.Error.Code, "message", page.Error.Message)
			continue
		}
		text := strings.TrimSpace(fullText(page))
		if text == "" {
			continue
		}
		texts = append(texts, text)
		if page.FullTextAnnotation != nil {
			items = append(items, buildLineItems(text, collectWords(page.FullTextAnnotation))...)
			rawPages = append(rawPages, page.FullTextAnnotation)
		} else {
			items = append(items, buildLineItems(text, nil)...)
		}
	}
	extracted := strings.TrimSpace(strings.Join(texts, "\n"))
	if extracted == "" {
		return nil, common.ProviderError("OCR nao retornou texto para o PDF.", nil)
	}
	raw, _ := json.Marshal(rawPages)
	return &Result{Text: extracted, Items: items, Raw: raw}, nil
}

func (v *VisionAdapter) awaitOperation(ctx context.Context, name string, opts Options) error {
	deadline := time.Now().Add(time.Duration(opts.TimeoutSeconds) * time.Second)
	for {
		var op visionOperation
		if err := v.get(ctx, "/"+name, &op, opts); err != nil {
			return err
		}
		if op.Done {
			if op.Error != nil && op.Error.Message != "" {
				return common.ProviderError(op.Error.Message, nil)
			}
			return nil
		}
		if time.Now().After(deadline) {
			return common.ProviderError(fmt.Sprintf("vision operation %s did not finish in %ds", name, opts.TimeoutSeconds), nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(operationPollEvery):
		}
	}
}

func (v *VisionAdapter) gatherOutputs(ctx context.Context, prefix string) ([]visionPageResponse, error) {
	var pages []visionPageResponse
	it := v.gcsClient.Bucket(v.scratchBucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, common.ProviderError("list ocr outputs", err)
		}
		if !strings.HasSuffix(attrs.Name, ".json") {
			continue
		}
		r, err := v.gcsClient.Bucket(v.scratchBucket).Object(attrs.Name).NewReader(ctx)
		if err != nil {
			return nil, common.ProviderError("read ocr output", err)
		}
		body, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			return nil, common.ProviderError("read ocr output", err)
		}
		var batch visionAnnotateResponse
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, common.ParsingError("decode ocr output", err)
		}
		pages = append(pages, batch.Responses...)
	}
	return pages, nil
}

func (v *VisionAdapter) cleanupScratch(inputName, outputPrefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	bucket := v.gcsClient.Bucket(v.scratchBucket)
	if err := bucket.Object(inputName).Delete(ctx); err != nil {
		v.logger.Debug("failed to remove ocr input", "object", inputName, "error", err)
	}
	it := bucket.Objects(ctx, &gcs.Query{Prefix: outputPrefix})
	for {
		attrs, err := it.Next()
		if err != nil {
			if err != iterator.Done {
				v.logger.Debug("failed to list ocr outputs", "prefix", outputPrefix, "error", err)
			}
			return
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			v.logger.Debug("failed to remove ocr output", "object", attrs.Name, "error", err)
		}
	}
}

// withRetries runs call with bounded exponential backoff, capped at 8s
// per wait. Only provider-level failures are retried.
func (v *VisionAdapter) withRetries(ctx context.Context, label string, retries int, call func() error) error {
	attempt := 0
	for {
		err := call()
		if err == nil {
			return nil
		}
		attempt++
		if attempt > retries {
			v.logger.Error("vision call failed", "label", label, "attempts", attempt, "error", err)
			return err
		}
		delay := time.Duration(1<<attempt) * time.Second
		if delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
		v.logger.Warn("vision retry", "label", label, "attempt", attempt, "retries", retries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (v *VisionAdapter) post(ctx context.Context, path string, payload, out any, opts Options) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode vision request: %w", err)
	}
	return v.do(ctx, http.MethodPost, path, bytes.NewReader(body), out, opts)
}

func (v *VisionAdapter) get(ctx context.Context, path string, out any, opts Options) error {
	return v.do(ctx, http.MethodGet, path, nil, out, opts)
}

func (v *VisionAdapter) do(ctx context.Context, method, path string, body io.Reader, out any, opts Options) error {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(opts.TimeoutSeconds)*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s%s?key=%s", v.endpoint, path, v.apiKey)
	req, err := http.NewRequestWithContext(callCtx, method, url, body)
	if err != nil {
		return fmt.Errorf("build vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return common.ProviderError("vision request failed", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.ProviderError("read vision response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return common.ProviderError(fmt.Sprintf("vision returned status %d: %s", resp.StatusCode, truncateBody(payload)), nil)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return common.ParsingError("decode vision response", err)
	}
	return nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}

func languageContext(hints []string) *visionContext {
	if len(hints) == 0 {
		return nil
	}
	return &visionContext{LanguageHints: hints}
}

func pageRange(maxPages int) []int {
	if maxPages <= 0 {
		return nil
	}
	pages := make([]int, maxPages)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

func fullText(page visionPageResponse) string {
	if page.FullTextAnnotation != nil && page.FullTextAnnotation.Text != "" {
		return page.FullTextAnnotation.Text
	}
	if len(page.TextAnnotations) > 0 {
		return page.TextAnnotations[0].Description
	}
	return ""
}

func collectWords(fta *visionFullText) []wordToken {
	var words []wordToken
	for _, p := range fta.Pages {
		for _, b := range p.Blocks {
			for _, par := range b.Paragraphs {
				for _, w := range par.Words {
					var sb strings.Builder
					for _, s := range w.Symbols {
						sb.WriteString(s.Text)
					}
					words = append(words, wordToken{Text: sb.String(), Confidence: w.Confidence})
				}
			}
		}
	}
	return words
}
