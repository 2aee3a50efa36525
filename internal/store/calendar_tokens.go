package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/models"
)

// PutCalendarToken inserts or replaces a calendar-feed token record.
func (s *Store) PutCalendarToken(ctx context.Context, r models.CalendarTokenRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_tokens (token, user_id, created_at, updated_at, revoked, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			updated_at = excluded.updated_at, revoked = excluded.revoked, revoked_at = excluded.revoked_at
	`, r.Token, r.UserID, r.CreatedAt, r.UpdatedAt, r.Revoked, r.RevokedAt)
	if err != nil {
		return fmt.Errorf("store: put calendar token: %w", err)
	}
	return nil
}

// GetCalendarToken looks up a token record by its opaque value.
func (s *Store) GetCalendarToken(ctx context.Context, token string) (models.CalendarTokenRecord, error) {
	var r models.CalendarTokenRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT token, user_id, created_at, updated_at, revoked, revoked_at FROM calendar_tokens WHERE token = ?
	`, token).Scan(&r.Token, &r.UserID, &r.CreatedAt, &r.UpdatedAt, &r.Revoked, &r.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CalendarTokenRecord{}, apperr.NotFound("calendar token not found")
	}
	if err != nil {
		return models.CalendarTokenRecord{}, fmt.Errorf("store: get calendar token: %w", err)
	}
	return r, nil
}

// ListCalendarTokensByUser returns every token ever minted for a user,
// including revoked ones, for the admin/revocation view.
func (s *Store) ListCalendarTokensByUser(ctx context.Context, userID string) ([]models.CalendarTokenRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, user_id, created_at, updated_at, revoked, revoked_at FROM calendar_tokens
		WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list calendar tokens for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.CalendarTokenRecord
	for rows.Next() {
		var r models.CalendarTokenRecord
		if err := rows.Scan(&r.Token, &r.UserID, &r.CreatedAt, &r.UpdatedAt, &r.Revoked, &r.RevokedAt); err != nil {
			return nil, fmt.Errorf("store: scan calendar token: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RevokeCalendarToken marks a token revoked as of revokedAt (RFC3339 UTC).
func (s *Store) RevokeCalendarToken(ctx context.Context, token, revokedAt string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE calendar_tokens SET revoked = 1, revoked_at = ?, updated_at = ? WHERE token = ? AND revoked = 0
	`, revokedAt, revokedAt, token)
	if err != nil {
		return fmt.Errorf("store: revoke calendar token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: revoke calendar token rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("calendar token not found or already revoked")
	}
	return nil
}
