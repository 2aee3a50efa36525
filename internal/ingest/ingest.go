// Package ingest implements the four document-ingestion task handlers
// (spec §4.G) driven by an external step orchestrator:
//
//	extract -> (needsTextract ? startOCR -> poll (loop) -> finalize : finalize)
//
// Each handler is a pure function over its input plus injected ports, so the
// orchestration topology itself lives in the Temporal workflow that calls
// them (internal/temporal), not in this package.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/metrics"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/ports"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

const maxOfficeDocBytes = 50 * 1024 * 1024

// Handlers wires the ports every task handler needs.
type Handlers struct {
	Store     ports.ObjectStore
	Converter ports.DocConverter
	Extractor ports.TextExtractor
	OCR       ports.OCRClient
	KB        ports.KBClient
	DB        *store.Store

	KnowledgeBaseID           string
	KnowledgeBaseDataSourceID string
}

// ExtractInput is the extract handler's request.
type ExtractInput struct {
	Bucket    string
	Key       string
	Threshold int // defaults to 200 when <= 0
}

// ExtractOutput carries the fields the orchestrator threads into the
// subsequent OCR or finalize step.
type ExtractOutput struct {
	Text          string
	TextLength    int
	UsedTextract  bool
	NeedsTextract bool
	TextractKey   string
}

// Extract reads the object, converts office documents to PDF when needed,
// and extracts text with the PDF text library, flagging whether OCR must
// run as a fallback (spec §4.G "extract").
func (h *Handlers) Extract(ctx context.Context, in ExtractInput) (ExtractOutput, error) {
	if in.Bucket == "" || in.Key == "" {
		return ExtractOutput{}, apperr.Validation("bucket and key are required")
	}
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = 200
	}

	data, _, err := h.Store.Get(ctx, in.Key)
	if err != nil {
		return ExtractOutput{}, apperr.Upstream("ingest: read source object", err)
	}

	extractionKey := in.Key
	textractKey := in.Key
	extractionData := data

	if ext, ok := officeExtension(in.Key); ok {
		if len(data) > maxOfficeDocBytes {
			return ExtractOutput{}, apperr.Validationf(fmt.Sprintf("'%s' exceeds 50MiB limit", ext), nil)
		}
		convertCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
		converted, err := h.Converter.ConvertToPDF(convertCtx, data, 90*time.Second)
		cancel()
		if err != nil {
			return ExtractOutput{}, apperr.Upstream(fmt.Sprintf("ingest: convert %s to pdf", ext), err)
		}
		convertedKey := convertedPDFKey(in.Key)
		if err := h.Store.Put(ctx, convertedKey, converted, "application/pdf"); err != nil {
			return ExtractOutput{}, apperr.Upstream("ingest: write converted pdf", err)
		}
		extractionKey = convertedKey
		textractKey = convertedKey
		extractionData = converted
	}

	text, err := h.extractText(ctx, extractionData, extractionKey)
	if err != nil {
		return ExtractOutput{}, apperr.Upstream("ingest: extract text", err)
	}

	return ExtractOutput{
		Text:          text,
		TextLength:    len(text),
		UsedTextract:  false,
		NeedsTextract: len(strings.TrimSpace(text)) < threshold,
		TextractKey:   textractKey,
	}, nil
}

func (h *Handlers) extractText(ctx context.Context, data []byte, key string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(key), ".pdf") {
		return string(data), nil
	}
	text, err := h.Extractor.ExtractText(ctx, data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func officeExtension(key string) (string, bool) {
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".pptx"):
		return ".pptx", true
	case strings.HasSuffix(lower, ".docx"):
		return ".docx", true
	case strings.HasSuffix(lower, ".doc"):
		return ".doc", true
	}
	return "", false
}

func convertedPDFKey(key string) string {
	if idx := strings.LastIndexByte(key, '.'); idx > 0 {
		return key[:idx] + ".converted.pdf"
	}
	return key + ".converted.pdf"
}

// StartOCROutput is the start_ocr handler's response.
type StartOCROutput struct {
	TextractJobID string
	UsedTextract  bool
}

// StartOCR starts asynchronous OCR on textractKey (spec §4.G "start_ocr").
func (h *Handlers) StartOCR(ctx context.Context, textractKey string) (StartOCROutput, error) {
	if textractKey == "" {
		return StartOCROutput{}, apperr.Validation("textractKey is required")
	}
	jobID, err := h.OCR.Start(ctx, textractKey)
	if err != nil {
		return StartOCROutput{}, apperr.Upstream("ingest: start ocr job", err)
	}
	return StartOCROutput{TextractJobID: jobID, UsedTextract: true}, nil
}

// PollOCROutput is the poll_ocr handler's response.
type PollOCROutput struct {
	Done       bool
	Text       string
	TextLength int
	Error      string
}

// PollOCR polls one OCR job and concatenates its recognized text once the
// job reaches a terminal success (spec §4.G "poll_ocr").
func (h *Handlers) PollOCR(ctx context.Context, jobID string) (PollOCROutput, error) {
	if jobID == "" {
		return PollOCROutput{}, apperr.Validation("textractJobId is required")
	}
	result, err := h.OCR.Poll(ctx, jobID)
	if err != nil {
		return PollOCROutput{}, apperr.Upstream("ingest: poll ocr job", err)
	}
	if !result.Done {
		return PollOCROutput{Done: false}, nil
	}
	if result.Error != "" {
		return PollOCROutput{Done: true, Error: result.Error}, nil
	}
	text := strings.TrimSpace(result.Text)
	return PollOCROutput{Done: true, Text: text, TextLength: len(text)}, nil
}

// FinalizeInput is the finalize handler's request.
type FinalizeInput struct {
	JobID        string
	SourceDocID  string
	CourseID     string
	SourceKey    string
	Text         string
	UsedTextract bool
	Error        string
}

// FinalizeOutput is the finalize handler's response.
type FinalizeOutput struct {
	JobID        string
	Status       models.IngestJobStatus
	TextLength   int
	UsedTextract bool
	UpdatedAt    string
	Error        string
}

// KBIngestClientToken is a pure function of (sourceKey, textLength): the
// idempotent client token finalize submits to the knowledge base so retries
// of the same content revision never double-trigger a re-index (spec §8
// scenario 3).
func KBIngestClientToken(sourceKey string, textLength int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", sourceKey, textLength)))
	return hex.EncodeToString(sum[:])
}

// Finalize upserts the ingest job's terminal status and, when it finished
// successfully and KB configuration is present, submits an idempotent KB
// ingestion job. Ingestion failures never abort finalize -- they are
// recorded on the row so the workflow still converges (spec §7).
func (h *Handlers) Finalize(ctx context.Context, in FinalizeInput) (FinalizeOutput, error) {
	if in.JobID == "" || in.SourceDocID == "" || in.CourseID == "" || in.SourceKey == "" {
		return FinalizeOutput{}, apperr.Validation("jobId, sourceDocId, courseId, and sourceKey are required")
	}

	status := models.IngestFinished
	if in.Error != "" {
		status = models.IngestFailed
	}
	now := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	job := models.IngestJob{
		JobID:        in.JobID,
		SourceDocID:  in.SourceDocID,
		CourseID:     in.CourseID,
		SourceKey:    in.SourceKey,
		Status:       status,
		TextLength:   len(in.Text),
		UsedTextract: in.UsedTextract,
		UpdatedAt:    now,
		Error:        in.Error,
	}

	if status == models.IngestFinished {
		h.triggerKBIngestion(ctx, &job, in.Text)
		metrics.IngestCounter(metrics.IngestSuccess)
	} else {
		metrics.IngestCounter(metrics.IngestFailure)
	}

	if err := h.DB.PutIngestJob(ctx, job); err != nil {
		return FinalizeOutput{}, fmt.Errorf("ingest: persist finalize status: %w", err)
	}

	return FinalizeOutput{
		JobID:        job.JobID,
		Status:       job.Status,
		TextLength:   job.TextLength,
		UsedTextract: job.UsedTextract,
		UpdatedAt:    job.UpdatedAt,
		Error:        job.Error,
	}, nil
}

func (h *Handlers) triggerKBIngestion(ctx context.Context, job *models.IngestJob, text string) {
	if h.KnowledgeBaseID == "" || h.KnowledgeBaseDataSourceID == "" {
		job.KBIngestionError = "server misconfiguration: knowledge base id and data source id are required for KB ingestion"
		metrics.IngestCounter(metrics.IngestKBTriggerMissingCfg)
		return
	}

	metrics.IngestCounter(metrics.IngestKBTriggerStarted)
	clientToken := KBIngestClientToken(job.SourceKey, len(text))
	ingestionJobID, err := h.KB.Ingest(ctx, job.SourceKey, clientToken)
	if err != nil {
		job.KBIngestionError = fmt.Sprintf("KB ingestion trigger failed: %v", err)
		metrics.IngestCounter(metrics.IngestKBTriggerFailed)
		return
	}
	job.KBIngestionJobID = ingestionJobID
	metrics.IngestCounter(metrics.IngestKBTriggerSucceeded)
}
