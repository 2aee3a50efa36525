package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/models"
)

// PutCard inserts or replaces a flashcard, deriving the indexed due_at
// column from the card's FSRS state so ListDueCards can range-scan it.
func (s *Store) PutCard(ctx context.Context, c models.Card) error {
	pk, sk := models.CardKey(c.CourseID, c.ID)

	citationsJSON, err := json.Marshal(c.Citations)
	if err != nil {
		return fmt.Errorf("store: marshal card citations %s: %w", c.ID, err)
	}

	var fsrsJSON sql.NullString
	if c.FSRSState != nil {
		b, err := json.Marshal(c.FSRSState)
		if err != nil {
			return fmt.Errorf("store: marshal card fsrs state %s: %w", c.ID, err)
		}
		fsrsJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cards (pk, sk, id, course_id, topic_id, prompt, answer, citations_json, fsrs_state_json, review_count, due_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pk, sk) DO UPDATE SET
			topic_id = excluded.topic_id, prompt = excluded.prompt, answer = excluded.answer,
			citations_json = excluded.citations_json, fsrs_state_json = excluded.fsrs_state_json,
			review_count = excluded.review_count, due_at = excluded.due_at
	`, pk, sk, c.ID, c.CourseID, c.TopicID, c.Prompt, c.Answer, string(citationsJSON), fsrsJSON, c.ReviewCount, c.DueAt())
	if err != nil {
		return fmt.Errorf("store: put card %s: %w", c.ID, err)
	}
	return nil
}

// GetCard returns a single card, or NotFound if absent.
func (s *Store) GetCard(ctx context.Context, courseID, cardID string) (models.Card, error) {
	pk, sk := models.CardKey(courseID, cardID)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, topic_id, prompt, answer, citations_json, fsrs_state_json, review_count
		FROM cards WHERE pk = ? AND sk = ?
	`, pk, sk)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Card{}, apperr.NotFound("card not found")
	}
	if err != nil {
		return models.Card{}, fmt.Errorf("store: get card %s: %w", cardID, err)
	}
	return c, nil
}

// ListCardsByCourse returns every card generated for a course.
func (s *Store) ListCardsByCourse(ctx context.Context, courseID string) ([]models.Card, error) {
	pk, _ := models.CardKey(courseID, "")
	return queryCards(ctx, s.db, `
		SELECT id, course_id, topic_id, prompt, answer, citations_json, fsrs_state_json, review_count
		FROM cards WHERE pk = ? ORDER BY id
	`, pk)
}

// ListDueCards returns cards in courseID due at or before asOf, in due-date
// order, capped at limit (0 means unlimited) for spec §4.I's review queue.
func (s *Store) ListDueCards(ctx context.Context, courseID string, asOf string, limit int) ([]models.Card, error) {
	pk, _ := models.CardKey(courseID, "")
	query := `
		SELECT id, course_id, topic_id, prompt, answer, citations_json, fsrs_state_json, review_count
		FROM cards WHERE pk = ? AND due_at != '' AND due_at <= ? ORDER BY due_at
	`
	args := []any{pk, asOf}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return queryCards(ctx, s.db, query, args...)
}

func queryCards(ctx context.Context, db dbQuerier, query string, args ...any) ([]models.Card, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query cards: %w", err)
	}
	defer rows.Close()

	var out []models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (models.Card, error) {
	var c models.Card
	var citationsJSON string
	var fsrsJSON sql.NullString
	if err := row.Scan(&c.ID, &c.CourseID, &c.TopicID, &c.Prompt, &c.Answer, &citationsJSON, &fsrsJSON, &c.ReviewCount); err != nil {
		return models.Card{}, err
	}
	if err := json.Unmarshal([]byte(citationsJSON), &c.Citations); err != nil {
		return models.Card{}, fmt.Errorf("unmarshal citations: %w", err)
	}
	if fsrsJSON.Valid {
		var state fsrs.State
		if err := json.Unmarshal([]byte(fsrsJSON.String), &state); err != nil {
			return models.Card{}, fmt.Errorf("unmarshal fsrs state: %w", err)
		}
		c.FSRSState = &state
	}
	return c, nil
}
