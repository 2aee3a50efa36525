// Package study implements the three study-loop endpoints (spec §4.I):
// today's review queue, recording a review via FSRS, and per-topic
// mastery aggregation. It is pure selection/aggregation logic layered
// directly over internal/store and internal/fsrs.
package study

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

const (
	todayQueueLimit    = 50
	fallbackQueueSize  = 5
	examWindowDays     = 7
	masteryBoostThresh = 0.5
	masteryStabilityCap = 10.0
)

// Selector resolves the /study endpoints against a Store.
type Selector struct {
	Store *store.Store
}

func cardMastery(c models.Card) float64 {
	if c.FSRSState == nil {
		return 0
	}
	return clamp(c.FSRSState.Stability/masteryStabilityCap, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// farFutureSortKey is substituted for a missing/unparseable due date so
// such cards always sort last, mirroring
// original_source/backend/runtime.py's _safe_timestamp_for_sort.
const farFutureSortKey = "9999-12-31T23:59:59Z"

func sortKey(c models.Card) string {
	if c.DueAt() == "" {
		return farFutureSortKey
	}
	return c.DueAt()
}

func cardLess(a, b models.Card) bool {
	ka, kb := sortKey(a), sortKey(b)
	if ka != kb {
		return ka < kb
	}
	return a.ID < b.ID
}

// isDue reports whether a card counts as due now: a missing fsrsState (a
// card that has never been reviewed) always counts as due, matching
// _is_due_timestamp's "missing dueAt is due" rule.
func isDue(c models.Card, nowStr string) bool {
	if c.FSRSState == nil || c.DueAt() == "" {
		return true
	}
	return c.DueAt() <= nowStr
}

// Today computes spec §4.I's /study/today selection for one course.
func (s *Selector) Today(ctx context.Context, userID, courseID, examID string, now time.Time) ([]models.Card, error) {
	cards, err := s.Store.ListCardsByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("study: list cards for course %s: %w", courseID, err)
	}
	sort.Slice(cards, func(i, j int) bool { return cardLess(cards[i], cards[j]) })

	nowStr := fsrs.FormatRFC3339UTC(now)
	due := make([]models.Card, 0, len(cards))
	dueSet := map[string]bool{}
	for _, c := range cards {
		if isDue(c, nowStr) {
			due = append(due, c)
			dueSet[c.ID] = true
		}
	}

	// Canvas item context is a best-effort enhancement: a lookup failure
	// degrades to "no exam window" rather than failing the whole selection.
	examDueAt, hasExam, _ := s.resolveExamDueAt(ctx, userID, courseID, examID, now)

	queue := due
	if hasExam {
		daysUntil := examDueAt.Sub(now).Hours() / 24.0
		if daysUntil >= 0 && daysUntil <= examWindowDays {
			queue = append(queue, boosterCards(cards, dueSet)...)
		}
	}

	if len(queue) == 0 {
		limit := fallbackQueueSize
		if limit > len(cards) {
			limit = len(cards)
		}
		queue = append(queue, cards[:limit]...)
	}

	if len(queue) > todayQueueLimit {
		queue = queue[:todayQueueLimit]
	}
	return queue, nil
}

// resolveExamDueAt finds the exam window's due date: examID's own due date
// if given, else the nearest future itemType=exam due date in the course.
func (s *Selector) resolveExamDueAt(ctx context.Context, userID, courseID, examID string, now time.Time) (time.Time, bool, error) {
	items, err := s.Store.ListCanvasItems(ctx, userID, courseID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("study: list canvas items for course %s: %w", courseID, err)
	}

	type examRow struct {
		id    string
		dueAt time.Time
	}
	var exams []examRow
	for _, item := range items {
		if item.ItemType != models.ItemExam {
			continue
		}
		dueAt, err := fsrs.ParseRFC3339UTC(item.DueAt)
		if err != nil || item.ID == "" {
			continue
		}
		exams = append(exams, examRow{id: item.ID, dueAt: dueAt})
	}

	if examID != "" {
		for _, e := range exams {
			if e.id == examID {
				return e.dueAt, true, nil
			}
		}
		return time.Time{}, false, nil
	}

	var nearest time.Time
	found := false
	for _, e := range exams {
		if e.dueAt.Before(now) {
			continue
		}
		if !found || e.dueAt.Before(nearest) {
			nearest = e.dueAt
			found = true
		}
	}
	return nearest, found, nil
}

// boosterCards selects cards not already due whose topic mastery is below
// the threshold, sorted by (topicMastery, dueAt, id).
func boosterCards(cards []models.Card, dueSet map[string]bool) []models.Card {
	topicMastery := meanMasteryByTopic(cards)

	var boosters []models.Card
	for _, c := range cards {
		if dueSet[c.ID] {
			continue
		}
		if topicMastery[c.TopicID] < masteryBoostThresh {
			boosters = append(boosters, c)
		}
	}

	sort.Slice(boosters, func(i, j int) bool {
		mi, mj := topicMastery[boosters[i].TopicID], topicMastery[boosters[j].TopicID]
		if mi != mj {
			return mi < mj
		}
		return cardLess(boosters[i], boosters[j])
	})
	return boosters
}

func meanMasteryByTopic(cards []models.Card) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, c := range cards {
		sums[c.TopicID] += cardMastery(c)
		counts[c.TopicID]++
	}
	means := make(map[string]float64, len(sums))
	for topic, sum := range sums {
		means[topic] = sum / float64(counts[topic])
	}
	return means
}

// ReviewInput is the validated /study/review request body.
type ReviewInput struct {
	CardID     string
	CourseID   string
	Rating     int
	ReviewedAt string
}

// Review applies an FSRS update for one card review (spec §4.I).
func (s *Selector) Review(ctx context.Context, in ReviewInput) error {
	card, err := s.Store.GetCard(ctx, in.CourseID, in.CardID)
	if err != nil {
		return err
	}

	reviewedAt, err := fsrs.ParseRFC3339UTC(in.ReviewedAt)
	if err != nil {
		return fmt.Errorf("study: reviewedAt must be RFC3339 UTC: %w", err)
	}

	rating := in.Rating
	if rating < 1 {
		rating = 1
	}
	if rating > 4 {
		rating = 4
	}

	next, err := fsrs.Schedule(card.FSRSState, rating, reviewedAt)
	if err != nil {
		return fmt.Errorf("study: schedule review for card %s: %w", in.CardID, err)
	}

	card.FSRSState = &next
	card.ReviewCount++
	if err := s.Store.PutCard(ctx, card); err != nil {
		return fmt.Errorf("study: persist reviewed card %s: %w", in.CardID, err)
	}
	return nil
}

// TopicMastery is one row of the /study/mastery response.
type TopicMastery struct {
	TopicID      string  `json:"topicId"`
	CourseID     string  `json:"courseId"`
	MasteryLevel float64 `json:"masteryLevel"`
	DueCards     int     `json:"dueCards"`
}

// Mastery computes per-topic mean mastery and due-card counts for a course.
func (s *Selector) Mastery(ctx context.Context, courseID string, now time.Time) ([]TopicMastery, error) {
	cards, err := s.Store.ListCardsByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("study: list cards for course %s: %w", courseID, err)
	}

	nowStr := fsrs.FormatRFC3339UTC(now)
	means := meanMasteryByTopic(cards)
	dueCounts := map[string]int{}
	for _, c := range cards {
		if isDue(c, nowStr) {
			dueCounts[c.TopicID]++
		}
	}

	rows := make([]TopicMastery, 0, len(means))
	for topic, mastery := range means {
		rows = append(rows, TopicMastery{
			TopicID:      topic,
			CourseID:     courseID,
			MasteryLevel: roundTo4(mastery),
			DueCards:     dueCounts[topic],
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TopicID < rows[j].TopicID })
	return rows, nil
}

func roundTo4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
