package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/models"
)

// PutIngestJob inserts or replaces an ingest job's current status.
func (s *Store) PutIngestJob(ctx context.Context, j models.IngestJob) error {
	if err := j.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_jobs (job_id, source_doc_id, course_id, source_key, status, text_length, used_textract, updated_at, error, kb_ingestion_job_id, kb_ingestion_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			status = excluded.status, text_length = excluded.text_length, used_textract = excluded.used_textract,
			updated_at = excluded.updated_at, error = excluded.error,
			kb_ingestion_job_id = excluded.kb_ingestion_job_id, kb_ingestion_error = excluded.kb_ingestion_error
	`, j.JobID, j.SourceDocID, j.CourseID, j.SourceKey, string(j.Status), j.TextLength, j.UsedTextract, j.UpdatedAt, j.Error, j.KBIngestionJobID, j.KBIngestionError)
	if err != nil {
		return fmt.Errorf("store: put ingest job %s: %w", j.JobID, err)
	}
	return nil
}

// GetIngestJob returns one ingest job's current status, or NotFound.
func (s *Store) GetIngestJob(ctx context.Context, jobID string) (models.IngestJob, error) {
	var j models.IngestJob
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, source_doc_id, course_id, source_key, status, text_length, used_textract, updated_at, error, kb_ingestion_job_id, kb_ingestion_error
		FROM ingest_jobs WHERE job_id = ?
	`, jobID).Scan(&j.JobID, &j.SourceDocID, &j.CourseID, &j.SourceKey, &status, &j.TextLength, &j.UsedTextract, &j.UpdatedAt, &j.Error, &j.KBIngestionJobID, &j.KBIngestionError)
	if errors.Is(err, sql.ErrNoRows) {
		return models.IngestJob{}, apperr.NotFound("ingest job not found")
	}
	if err != nil {
		return models.IngestJob{}, fmt.Errorf("store: get ingest job %s: %w", jobID, err)
	}
	j.Status = models.IngestJobStatus(status)
	return j, nil
}

// ListIngestJobsByCourse returns every ingest job recorded for a course,
// most recently updated first.
func (s *Store) ListIngestJobsByCourse(ctx context.Context, courseID string) ([]models.IngestJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, source_doc_id, course_id, source_key, status, text_length, used_textract, updated_at, error, kb_ingestion_job_id, kb_ingestion_error
		FROM ingest_jobs WHERE course_id = ? ORDER BY updated_at DESC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("store: list ingest jobs for %s: %w", courseID, err)
	}
	defer rows.Close()

	var out []models.IngestJob
	for rows.Next() {
		var j models.IngestJob
		var status string
		if err := rows.Scan(&j.JobID, &j.SourceDocID, &j.CourseID, &j.SourceKey, &status, &j.TextLength, &j.UsedTextract, &j.UpdatedAt, &j.Error, &j.KBIngestionJobID, &j.KBIngestionError); err != nil {
			return nil, fmt.Errorf("store: scan ingest job: %w", err)
		}
		j.Status = models.IngestJobStatus(status)
		out = append(out, j)
	}
	return out, rows.Err()
}
