package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/models"
)

// PutCourse inserts or replaces a user's course record.
func (s *Store) PutCourse(ctx context.Context, userID string, c models.Course) error {
	pk, sk := models.CourseKey(userID, c.ID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (pk, sk, id, name, term, color) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pk, sk) DO UPDATE SET name = excluded.name, term = excluded.term, color = excluded.color
	`, pk, sk, c.ID, c.Name, c.Term, c.Color)
	if err != nil {
		return fmt.Errorf("store: put course %s: %w", c.ID, err)
	}
	return nil
}

// GetCourse returns a single course, or a NotFound apperr if absent.
func (s *Store) GetCourse(ctx context.Context, userID, courseID string) (models.Course, error) {
	pk, sk := models.CourseKey(userID, courseID)
	var c models.Course
	err := s.db.QueryRowContext(ctx, `SELECT id, name, term, color FROM courses WHERE pk = ? AND sk = ?`, pk, sk).
		Scan(&c.ID, &c.Name, &c.Term, &c.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Course{}, apperr.NotFound("course not found")
	}
	if err != nil {
		return models.Course{}, fmt.Errorf("store: get course %s: %w", courseID, err)
	}
	return c, nil
}

// ListCourses returns every course enrolled for the user.
func (s *Store) ListCourses(ctx context.Context, userID string) ([]models.Course, error) {
	pk, _ := models.CourseKey(userID, "")
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, term, color FROM courses WHERE pk = ? ORDER BY id`, pk)
	if err != nil {
		return nil, fmt.Errorf("store: list courses for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []models.Course
	for rows.Next() {
		var c models.Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Term, &c.Color); err != nil {
			return nil, fmt.Errorf("store: scan course: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCourse removes a course and its mirrored items/materials.
func (s *Store) DeleteCourse(ctx context.Context, userID, courseID string) error {
	pk, sk := models.CourseKey(userID, courseID)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE pk = ? AND sk = ?`, pk, sk); err != nil {
		return fmt.Errorf("store: delete course %s: %w", courseID, err)
	}
	itemsPK, _ := models.CanvasItemKey(userID, courseID, "")
	if _, err := s.db.ExecContext(ctx, `DELETE FROM canvas_items WHERE pk = ?`, itemsPK); err != nil {
		return fmt.Errorf("store: delete course items %s: %w", courseID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM canvas_materials WHERE pk = ?`, itemsPK); err != nil {
		return fmt.Errorf("store: delete course materials %s: %w", courseID, err)
	}
	return nil
}
