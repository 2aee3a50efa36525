package store

import (
	"context"
	"fmt"

	"github.com/antigravity-dev/studybuddy/internal/models"
)

// PutCanvasItem inserts or replaces one mirrored assignment/exam/quiz.
func (s *Store) PutCanvasItem(ctx context.Context, userID string, item models.CanvasItem) error {
	pk, sk := models.CanvasItemKey(userID, item.CourseID, item.ID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canvas_items (pk, sk, id, course_id, title, item_type, due_at, points_possible)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pk, sk) DO UPDATE SET
			title = excluded.title, item_type = excluded.item_type,
			due_at = excluded.due_at, points_possible = excluded.points_possible
	`, pk, sk, item.ID, item.CourseID, item.Title, string(item.ItemType), item.DueAt, item.PointsPossible)
	if err != nil {
		return fmt.Errorf("store: put canvas item %s: %w", item.ID, err)
	}
	return nil
}

// ListCanvasItems returns every mirrored item for one course.
func (s *Store) ListCanvasItems(ctx context.Context, userID, courseID string) ([]models.CanvasItem, error) {
	pk, _ := models.CanvasItemKey(userID, courseID, "")
	return queryCanvasItems(ctx, s.db, `SELECT id, course_id, title, item_type, due_at, points_possible FROM canvas_items WHERE pk = ? ORDER BY due_at`, pk)
}

// ListUpcomingCanvasItems returns items across every course for a user whose
// due date falls within [fromRFC3339, toRFC3339), for the /study/today view.
func (s *Store) ListUpcomingCanvasItems(ctx context.Context, userID string, courseIDs []string, fromRFC3339, toRFC3339 string) ([]models.CanvasItem, error) {
	var out []models.CanvasItem
	for _, courseID := range courseIDs {
		pk, _ := models.CanvasItemKey(userID, courseID, "")
		rows, err := queryCanvasItems(ctx, s.db, `
			SELECT id, course_id, title, item_type, due_at, points_possible FROM canvas_items
			WHERE pk = ? AND due_at >= ? AND due_at < ? ORDER BY due_at
		`, pk, fromRFC3339, toRFC3339)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func queryCanvasItems(ctx context.Context, db dbQuerier, query string, args ...any) ([]models.CanvasItem, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query canvas items: %w", err)
	}
	defer rows.Close()

	var out []models.CanvasItem
	for rows.Next() {
		var item models.CanvasItem
		var itemType string
		if err := rows.Scan(&item.ID, &item.CourseID, &item.Title, &itemType, &item.DueAt, &item.PointsPossible); err != nil {
			return nil, fmt.Errorf("store: scan canvas item: %w", err)
		}
		item.ItemType = models.ItemType(itemType)
		out = append(out, item)
	}
	return out, rows.Err()
}
