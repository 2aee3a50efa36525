package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/models"
)

// PutCanvasMaterial inserts or replaces one mirrored course file record.
func (s *Store) PutCanvasMaterial(ctx context.Context, userID string, m models.CanvasMaterial) error {
	pk, sk := models.CanvasMaterialKey(userID, m.CourseID, m.CanvasFileID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canvas_materials (pk, sk, canvas_file_id, course_id, display_name, content_type, size_bytes, updated_at, download_url, s3_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pk, sk) DO UPDATE SET
			display_name = excluded.display_name, content_type = excluded.content_type,
			size_bytes = excluded.size_bytes, updated_at = excluded.updated_at,
			download_url = excluded.download_url, s3_key = excluded.s3_key
	`, pk, sk, m.CanvasFileID, m.CourseID, m.DisplayName, m.ContentType, m.SizeBytes, m.UpdatedAt, m.DownloadURL, m.S3Key)
	if err != nil {
		return fmt.Errorf("store: put canvas material %s: %w", m.CanvasFileID, err)
	}
	return nil
}

// GetCanvasMaterial returns one mirrored material, or NotFound if absent.
func (s *Store) GetCanvasMaterial(ctx context.Context, userID, courseID, canvasFileID string) (models.CanvasMaterial, error) {
	pk, sk := models.CanvasMaterialKey(userID, courseID, canvasFileID)
	var m models.CanvasMaterial
	err := s.db.QueryRowContext(ctx, `
		SELECT canvas_file_id, course_id, display_name, content_type, size_bytes, updated_at, download_url, s3_key
		FROM canvas_materials WHERE pk = ? AND sk = ?
	`, pk, sk).Scan(&m.CanvasFileID, &m.CourseID, &m.DisplayName, &m.ContentType, &m.SizeBytes, &m.UpdatedAt, &m.DownloadURL, &m.S3Key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CanvasMaterial{}, apperr.NotFound("canvas material not found")
	}
	if err != nil {
		return models.CanvasMaterial{}, fmt.Errorf("store: get canvas material %s: %w", canvasFileID, err)
	}
	return m, nil
}

// ListCanvasMaterials returns every mirrored material for one course.
func (s *Store) ListCanvasMaterials(ctx context.Context, userID, courseID string) ([]models.CanvasMaterial, error) {
	pk, _ := models.CanvasMaterialKey(userID, courseID, "")
	rows, err := s.db.QueryContext(ctx, `
		SELECT canvas_file_id, course_id, display_name, content_type, size_bytes, updated_at, download_url, s3_key
		FROM canvas_materials WHERE pk = ? ORDER BY display_name
	`, pk)
	if err != nil {
		return nil, fmt.Errorf("store: list canvas materials for %s: %w", courseID, err)
	}
	defer rows.Close()

	var out []models.CanvasMaterial
	for rows.Next() {
		var m models.CanvasMaterial
		if err := rows.Scan(&m.CanvasFileID, &m.CourseID, &m.DisplayName, &m.ContentType, &m.SizeBytes, &m.UpdatedAt, &m.DownloadURL, &m.S3Key); err != nil {
			return nil, fmt.Errorf("store: scan canvas material: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
