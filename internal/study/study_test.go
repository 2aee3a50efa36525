package study

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

func openTestDB(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mustPutCard(t *testing.T, db *store.Store, c models.Card) {
	t.Helper()
	require.NoError(t, db.PutCard(context.Background(), c))
}

func TestToday_NewCardsAlwaysDue(t *testing.T) {
	db := openTestDB(t)
	mustPutCard(t, db, models.Card{ID: "c1", CourseID: "course1", TopicID: "t1", Prompt: "p", Answer: "a"})
	mustPutCard(t, db, models.Card{ID: "c2", CourseID: "course1", TopicID: "t1", Prompt: "p", Answer: "a"})

	sel := &Selector{Store: db}
	queue, err := sel.Today(context.Background(), "u1", "course1", "", time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, queue, 2)
}

func TestToday_TruncatesTo50(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 60; i++ {
		mustPutCard(t, db, models.Card{ID: fmt.Sprintf("c%02d", i), CourseID: "course1", TopicID: "t1", Prompt: "p", Answer: "a"})
	}
	sel := &Selector{Store: db}
	queue, err := sel.Today(context.Background(), "u1", "course1", "", time.Now())
	require.NoError(t, err)
	require.Len(t, queue, 50)
}

func TestToday_BoostersAppendedNearExam(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	// One already-due card (reviewed, due in the past).
	dueCard := models.Card{
		ID: "due1", CourseID: "course1", TopicID: "topicA", Prompt: "p", Answer: "a",
		FSRSState: &fsrs.State{DueAt: fsrs.FormatRFC3339UTC(now.Add(-time.Hour)), Stability: 5, Difficulty: 5, LastReviewedAt: fsrs.FormatRFC3339UTC(now.Add(-24 * time.Hour))},
	}
	mustPutCard(t, db, dueCard)

	// A not-due, low-mastery card in a different topic: booster candidate.
	boosterCard := models.Card{
		ID: "boost1", CourseID: "course1", TopicID: "topicB", Prompt: "p", Answer: "a",
		FSRSState: &fsrs.State{DueAt: fsrs.FormatRFC3339UTC(now.Add(30 * 24 * time.Hour)), Stability: 1, Difficulty: 5, LastReviewedAt: fsrs.FormatRFC3339UTC(now.Add(-time.Hour))},
	}
	mustPutCard(t, db, boosterCard)

	item := models.CanvasItem{
		ID: "exam1", CourseID: "course1", Title: "Final", ItemType: models.ItemExam,
		DueAt: fsrs.FormatRFC3339UTC(now.Add(3 * 24 * time.Hour)), PointsPossible: 100,
	}
	require.NoError(t, db.PutCanvasItem(context.Background(), "u1", item))

	sel := &Selector{Store: db}
	queue, err := sel.Today(context.Background(), "u1", "course1", "", now)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, c := range queue {
		ids[c.ID] = true
	}
	require.True(t, ids["due1"])
	require.True(t, ids["boost1"])
}

func TestReview_ClampsRatingAndUpdatesFSRS(t *testing.T) {
	db := openTestDB(t)
	mustPutCard(t, db, models.Card{ID: "c1", CourseID: "course1", TopicID: "t1", Prompt: "p", Answer: "a"})

	sel := &Selector{Store: db}
	err := sel.Review(context.Background(), ReviewInput{
		CardID: "c1", CourseID: "course1", Rating: 5, ReviewedAt: "2026-07-30T00:00:00Z",
	})
	require.NoError(t, err)

	card, err := db.GetCard(context.Background(), "course1", "c1")
	require.NoError(t, err)
	require.NotNil(t, card.FSRSState)
	require.Equal(t, 1, card.ReviewCount)
}

func TestReview_UnknownCardReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	sel := &Selector{Store: db}
	err := sel.Review(context.Background(), ReviewInput{
		CardID: "missing", CourseID: "course1", Rating: 3, ReviewedAt: "2026-07-30T00:00:00Z",
	})
	require.Error(t, err)
}

func TestMastery_GroupsByTopicSortedAndRounded(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	mustPutCard(t, db, models.Card{
		ID: "c1", CourseID: "course1", TopicID: "zeta", Prompt: "p", Answer: "a",
		FSRSState: &fsrs.State{DueAt: fsrs.FormatRFC3339UTC(now.Add(-time.Hour)), Stability: 5, Difficulty: 5, LastReviewedAt: fsrs.FormatRFC3339UTC(now.Add(-24 * time.Hour))},
	})
	mustPutCard(t, db, models.Card{ID: "c2", CourseID: "course1", TopicID: "alpha", Prompt: "p", Answer: "a"})

	sel := &Selector{Store: db}
	rows, err := sel.Mastery(context.Background(), "course1", now)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "alpha", rows[0].TopicID)
	require.Equal(t, "zeta", rows[1].TopicID)
	require.Equal(t, 0.5, rows[1].MasteryLevel)
}
