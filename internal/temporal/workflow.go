package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/antigravity-dev/studybuddy/internal/ingest"
	"github.com/antigravity-dev/studybuddy/internal/retrypolicy"
)

const maxOCRPollAttempts = 60

// IngestWorkflow orchestrates one document's extraction/ingestion pipeline
// (spec §4.G):
//
//	extract -> (needsTextract ? start_ocr -> poll (loop) -> finalize : finalize)
//
// Extract, start_ocr, poll, and finalize are pure handlers (internal/ingest);
// this workflow owns only the topology between them.
func IngestWorkflow(ctx workflow.Context, in IngestWorkflowInput) (IngestWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	var a *Activities

	extractOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         retrypolicy.ActivityDefaults(3),
	}
	ocrStartOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         retrypolicy.ActivityDefaults(3),
	}
	ocrPollOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Second,
		RetryPolicy:         retrypolicy.ActivityDefaults(3),
	}
	finalizeOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 1 * time.Minute,
		RetryPolicy:         retrypolicy.ActivityDefaults(3),
	}

	logger.Info("ingest: extracting", "jobId", in.JobID, "key", in.Key)
	extractCtx := workflow.WithActivityOptions(ctx, extractOpts)
	var extracted ingest.ExtractOutput
	extractErr := workflow.ExecuteActivity(extractCtx, a.ExtractActivity, ingest.ExtractInput{
		Bucket:    in.Bucket,
		Key:       in.Key,
		Threshold: in.Threshold,
	}).Get(ctx, &extracted)

	finalizeIn := ingest.FinalizeInput{
		JobID:       in.JobID,
		SourceDocID: in.SourceDocID,
		CourseID:    in.CourseID,
		SourceKey:   in.Key,
	}

	if extractErr != nil {
		finalizeIn.Error = extractErr.Error()
		return finalize(ctx, finalizeOpts, a, finalizeIn)
	}

	if !extracted.NeedsTextract {
		finalizeIn.Text = extracted.Text
		finalizeIn.UsedTextract = false
		return finalize(ctx, finalizeOpts, a, finalizeIn)
	}

	logger.Info("ingest: starting OCR", "jobId", in.JobID, "textractKey", extracted.TextractKey)
	startCtx := workflow.WithActivityOptions(ctx, ocrStartOpts)
	var started ingest.StartOCROutput
	if err := workflow.ExecuteActivity(startCtx, a.StartOCRActivity, extracted.TextractKey).Get(ctx, &started); err != nil {
		finalizeIn.Error = fmt.Sprintf("start ocr: %v", err)
		return finalize(ctx, finalizeOpts, a, finalizeIn)
	}

	pollCtx := workflow.WithActivityOptions(ctx, ocrPollOpts)
	var polled ingest.PollOCROutput
	for attempt := 0; attempt < maxOCRPollAttempts; attempt++ {
		if err := workflow.Sleep(ctx, 5*time.Second); err != nil {
			finalizeIn.Error = fmt.Sprintf("ocr poll sleep interrupted: %v", err)
			return finalize(ctx, finalizeOpts, a, finalizeIn)
		}
		if err := workflow.ExecuteActivity(pollCtx, a.PollOCRActivity, started.TextractJobID).Get(ctx, &polled); err != nil {
			finalizeIn.Error = fmt.Sprintf("poll ocr: %v", err)
			return finalize(ctx, finalizeOpts, a, finalizeIn)
		}
		if polled.Done {
			break
		}
		logger.Info("ingest: OCR still running", "jobId", in.JobID, "attempt", attempt+1)
	}

	if !polled.Done {
		finalizeIn.Error = "ocr job did not complete within the polling budget"
		return finalize(ctx, finalizeOpts, a, finalizeIn)
	}
	if polled.Error != "" {
		finalizeIn.Error = polled.Error
		return finalize(ctx, finalizeOpts, a, finalizeIn)
	}

	finalizeIn.Text = polled.Text
	finalizeIn.UsedTextract = true
	return finalize(ctx, finalizeOpts, a, finalizeIn)
}

func finalize(ctx workflow.Context, opts workflow.ActivityOptions, a *Activities, in ingest.FinalizeInput) (IngestWorkflowResult, error) {
	finalizeCtx := workflow.WithActivityOptions(ctx, opts)
	var out ingest.FinalizeOutput
	if err := workflow.ExecuteActivity(finalizeCtx, a.FinalizeActivity, in).Get(ctx, &out); err != nil {
		return IngestWorkflowResult{}, fmt.Errorf("ingest workflow: finalize: %w", err)
	}
	return IngestWorkflowResult{
		JobID:        out.JobID,
		Status:       string(out.Status),
		TextLength:   out.TextLength,
		UsedTextract: out.UsedTextract,
		UpdatedAt:    out.UpdatedAt,
		Error:        out.Error,
	}, nil
}

// ScheduledSyncWorkflow runs the cron-triggered LMS sync sweep (spec §4.H).
func ScheduledSyncWorkflow(ctx workflow.Context) (ScheduledSyncWorkflowResult, error) {
	var a *Activities
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         retrypolicy.ActivityDefaults(1),
	}
	syncCtx := workflow.WithActivityOptions(ctx, opts)
	var result ScheduledSyncWorkflowResult
	if err := workflow.ExecuteActivity(syncCtx, a.ScheduledSyncActivity).Get(ctx, &result); err != nil {
		return ScheduledSyncWorkflowResult{}, fmt.Errorf("scheduled sync workflow: %w", err)
	}
	return result, nil
}
