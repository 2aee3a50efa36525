package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "studybuddy.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCourseRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	course := models.Course{ID: "c1", Name: "Algorithms", Term: "Fall", Color: "#3366FF"}
	require.NoError(t, s.PutCourse(ctx, "user-1", course))

	got, err := s.GetCourse(ctx, "user-1", "c1")
	require.NoError(t, err)
	require.Equal(t, course, got)

	list, err := s.ListCourses(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.GetCourse(ctx, "user-1", "missing")
	require.Error(t, err)
}

func TestCanvasItemRangeQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.PutCanvasItem(ctx, "user-1", models.CanvasItem{
		ID: "a1", CourseID: "c1", Title: "HW1", ItemType: models.ItemAssignment,
		DueAt: "2026-08-01T00:00:00Z", PointsPossible: 10,
	}))
	require.NoError(t, s.PutCanvasItem(ctx, "user-1", models.CanvasItem{
		ID: "a2", CourseID: "c1", Title: "HW2", ItemType: models.ItemAssignment,
		DueAt: "2026-09-01T00:00:00Z", PointsPossible: 10,
	}))

	items, err := s.ListUpcomingCanvasItems(ctx, "user-1", []string{"c1"}, "2026-07-01T00:00:00Z", "2026-08-15T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "a1", items[0].ID)
}

func TestCardDueQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	due := fsrs.State{DueAt: "2026-07-30T00:00:00Z", Stability: 2.5, Difficulty: 4.7, Reps: 1}
	require.NoError(t, s.PutCard(ctx, models.Card{
		ID: "card-1", CourseID: "c1", Prompt: "p", Answer: "a", FSRSState: &due,
	}))
	require.NoError(t, s.PutCard(ctx, models.Card{
		ID: "card-2", CourseID: "c1", Prompt: "p2", Answer: "a2",
	}))

	due1, err := s.ListDueCards(ctx, "c1", "2026-07-31T00:00:00Z", 0)
	require.NoError(t, err)
	require.Len(t, due1, 1)
	require.Equal(t, "card-1", due1[0].ID)
	require.NotNil(t, due1[0].FSRSState)

	all, err := s.ListCardsByCourse(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCalendarTokenRevocation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec := models.CalendarTokenRecord{
		Token: "tok-1", UserID: "user-1",
		CreatedAt: "2026-07-30T00:00:00Z", UpdatedAt: "2026-07-30T00:00:00Z",
	}
	require.NoError(t, s.PutCalendarToken(ctx, rec))

	require.NoError(t, s.RevokeCalendarToken(ctx, "tok-1", "2026-07-30T01:00:00Z"))
	got, err := s.GetCalendarToken(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, got.Revoked)
	require.Equal(t, "2026-07-30T01:00:00Z", got.RevokedAt)

	require.Error(t, s.RevokeCalendarToken(ctx, "tok-1", "2026-07-30T02:00:00Z"))
}

func TestIngestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	job := models.IngestJob{
		JobID: "job-1", SourceDocID: "doc-1", CourseID: "c1", SourceKey: "uploads/c1/doc-1/x.pdf",
		Status: models.IngestRunning, UpdatedAt: "2026-07-30T00:00:00Z",
	}
	require.NoError(t, s.PutIngestJob(ctx, job))

	job.Status = models.IngestFinished
	job.TextLength = 1000
	require.NoError(t, s.PutIngestJob(ctx, job))

	got, err := s.GetIngestJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, models.IngestFinished, got.Status)
	require.Equal(t, 1000, got.TextLength)

	bad := job
	bad.Status = models.IngestFailed
	bad.Error = ""
	require.Error(t, s.PutIngestJob(ctx, bad))
}
