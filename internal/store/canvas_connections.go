package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/models"
)

// PutCanvasConnection stores the at-most-one LMS credential for a user.
func (s *Store) PutCanvasConnection(ctx context.Context, c models.CanvasConnection) error {
	pk, sk := models.CanvasConnectionKey(c.UserID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canvas_connections (pk, sk, user_id, canvas_base_url, access_token, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pk, sk) DO UPDATE SET
			canvas_base_url = excluded.canvas_base_url, access_token = excluded.access_token, updated_at = excluded.updated_at
	`, pk, sk, c.UserID, c.CanvasBaseURL, c.AccessToken, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: put canvas connection for %s: %w", c.UserID, err)
	}
	return nil
}

// GetCanvasConnection returns the user's LMS credential, or NotFound.
func (s *Store) GetCanvasConnection(ctx context.Context, userID string) (models.CanvasConnection, error) {
	pk, sk := models.CanvasConnectionKey(userID)
	var c models.CanvasConnection
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, canvas_base_url, access_token, updated_at FROM canvas_connections WHERE pk = ? AND sk = ?
	`, pk, sk).Scan(&c.UserID, &c.CanvasBaseURL, &c.AccessToken, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CanvasConnection{}, apperr.NotFound("no canvas connection for user")
	}
	if err != nil {
		return models.CanvasConnection{}, fmt.Errorf("store: get canvas connection for %s: %w", userID, err)
	}
	return c, nil
}

// ListAllCanvasConnections returns every stored LMS connection, for the
// scheduled sync entrypoint (spec §4.H's "iterates every stored connection").
func (s *Store) ListAllCanvasConnections(ctx context.Context) ([]models.CanvasConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, canvas_base_url, access_token, updated_at FROM canvas_connections ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list all canvas connections: %w", err)
	}
	defer rows.Close()

	var out []models.CanvasConnection
	for rows.Next() {
		var c models.CanvasConnection
		if err := rows.Scan(&c.UserID, &c.CanvasBaseURL, &c.AccessToken, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan canvas connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCanvasConnection removes a user's stored LMS credential.
func (s *Store) DeleteCanvasConnection(ctx context.Context, userID string) error {
	pk, sk := models.CanvasConnectionKey(userID)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM canvas_connections WHERE pk = ? AND sk = ?`, pk, sk); err != nil {
		return fmt.Errorf("store: delete canvas connection for %s: %w", userID, err)
	}
	return nil
}
