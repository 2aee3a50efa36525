package dispatch

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/temporal"
)

type ingestSubmitBody struct {
	CourseID    string `json:"courseId"`
	SourceDocID string `json:"sourceDocId"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Threshold   int    `json:"threshold"`
}

// handleDocsIngestSubmit creates a RUNNING ingest job row and starts the
// extraction workflow (spec §4.G). The workflow runs asynchronously; the
// response is the 202-accepted job record the caller polls.
func (s *Server) handleDocsIngestSubmit(w http.ResponseWriter, ctx context.Context, env Envelope) {
	var body ingestSubmitBody
	if err := decodeJSONBody(env.Body, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.CourseID) == "" || strings.TrimSpace(body.SourceDocID) == "" ||
		strings.TrimSpace(body.Bucket) == "" || strings.TrimSpace(body.Key) == "" {
		s.writeError(w, http.StatusBadRequest, "courseId, sourceDocId, bucket, and key are required")
		return
	}

	jobID := "job-" + uuid.New().String()
	job := models.IngestJob{
		JobID:       jobID,
		SourceDocID: body.SourceDocID,
		CourseID:    body.CourseID,
		SourceKey:   body.Key,
		Status:      models.IngestRunning,
	}
	if err := s.Store.PutIngestJob(ctx, job); err != nil {
		s.writeErr(w, err)
		return
	}

	in := temporal.IngestWorkflowInput{
		JobID:       jobID,
		SourceDocID: body.SourceDocID,
		CourseID:    body.CourseID,
		Bucket:      body.Bucket,
		Key:         body.Key,
		Threshold:   body.Threshold,
	}
	if err := s.Ingest.SubmitIngestWorkflow(ctx, in); err != nil {
		s.writeErr(w, apperr.Upstream("failed to submit ingest workflow", err))
		return
	}

	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleDocsIngestStatus(w http.ResponseWriter, ctx context.Context, jobID string) {
	if strings.TrimSpace(jobID) == "" {
		s.writeError(w, http.StatusBadRequest, "jobId is required")
		return
	}
	job, err := s.Store.GetIngestJob(ctx, jobID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}
