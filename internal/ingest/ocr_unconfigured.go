package ingest

import (
	"context"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/ports"
)

// UnconfiguredOCR is a ports.OCRClient that always fails, for deployments
// that never wire a real OCR backend. The OCR fallback path only runs when
// a document's extracted text falls below its threshold (spec §4.G's
// needsTextract branch); most materials never reach it, so a deployment
// without a configured OCR provider can still run everything else.
type UnconfiguredOCR struct{}

func (UnconfiguredOCR) Start(ctx context.Context, objectKey string) (string, error) {
	return "", apperr.Misconfigured("OCR is not configured for this deployment")
}

func (UnconfiguredOCR) Poll(ctx context.Context, jobID string) (ports.OCRPollResult, error) {
	return ports.OCRPollResult{}, apperr.Misconfigured("OCR is not configured for this deployment")
}

var _ ports.OCRClient = UnconfiguredOCR{}
