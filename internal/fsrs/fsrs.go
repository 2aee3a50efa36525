// Package fsrs implements the deterministic, pure spaced-repetition
// scheduler used by /study/review. It performs no I/O: given a prior
// state (or nil), a rating, and a timestamp, it returns the next state.
package fsrs

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

const (
	defaultDifficulty = 5.0
	minStability       = 0.15
	maxDifficulty       = 10.0
	minDifficulty       = 1.0
	relearnIntervalDays = 4.0 / 24.0
)

var firstIntervalDays = map[int]float64{1: 0.0, 2: 1.0 / 24.0, 3: 1.0, 4: 3.0}
var firstStability = map[int]float64{1: 0.30, 2: 0.80, 3: 2.50, 4: 4.00}
var firstDifficultyDelta = map[int]float64{1: 1.20, 2: 0.40, 3: -0.30, 4: -0.80}

var reviewDifficultyDelta = map[int]float64{1: 1.00, 2: 0.30, 3: -0.15, 4: -0.45}
var reviewIntervalFactor = map[int]float64{2: 0.80, 3: 1.00, 4: 1.35}

var rfc3339UTCPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d{1,6})?Z$`)

// State is the serialized scheduling state for a card, as it appears on the
// wire in /study endpoints.
type State struct {
	DueAt          string  `json:"dueAt"`
	Stability      float64 `json:"stability"`
	Difficulty     float64 `json:"difficulty"`
	Reps           int     `json:"reps"`
	Lapses         int     `json:"lapses"`
	LastReviewedAt string  `json:"lastReviewedAt"`
}

// ParseRFC3339UTC parses a strict RFC3339 UTC timestamp with trailing "Z",
// optionally carrying up to 6 fractional-second digits.
func ParseRFC3339UTC(timestamp string) (time.Time, error) {
	if !rfc3339UTCPattern.MatchString(timestamp) {
		return time.Time{}, fmt.Errorf("fsrs: timestamp must be RFC3339 UTC with trailing Z: %q", timestamp)
	}
	t, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("fsrs: invalid timestamp %q: %w", timestamp, err)
	}
	return t.UTC(), nil
}

// FormatRFC3339UTC formats t as RFC3339 UTC with trailing "Z" at second
// precision. A zero-value Location is treated as UTC for call-site ergonomics.
func FormatRFC3339UTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func rounded(value float64) float64 {
	return math.Round(value*1e6) / 1e6
}

func retrievability(stability, elapsedDays float64) float64 {
	return 1.0 / (1.0 + elapsedDays/math.Max(stability, minStability))
}

// Schedule applies the deterministic FSRS-style scheduling update for one
// review. prior is nil for a card's first review. rating must be 1..4.
// now is the review timestamp.
func Schedule(prior *State, rating int, now time.Time) (State, error) {
	if rating < 1 || rating > 4 {
		return State{}, fmt.Errorf("fsrs: rating must be in range 1..4, got %d", rating)
	}
	now = now.UTC()

	if prior == nil {
		return firstReview(now, rating), nil
	}

	lastReviewed, err := ParseRFC3339UTC(prior.LastReviewedAt)
	if err != nil {
		return State{}, err
	}
	elapsedDays := math.Max(0.0, now.Sub(lastReviewed).Hours()/24.0)
	r := retrievability(prior.Stability, elapsedDays)
	retentionGap := math.Max(0.0, 1.0-r)

	var nextStability, intervalDays, difficultyDelta float64
	nextLapses := prior.Lapses

	if rating == 1 {
		nextStability = math.Max(minStability, prior.Stability*0.55)
		intervalDays = relearnIntervalDays
		nextLapses = prior.Lapses + 1
		difficultyDelta = reviewDifficultyDelta[rating]
	} else {
		gain := 1.0 + (0.25+0.08*float64(rating))*(1.0+retentionGap)*((11.0-prior.Difficulty)/10.0)
		nextStability = math.Max(minStability, prior.Stability*gain)
		intervalDays = nextStability * reviewIntervalFactor[rating]
		difficultyDelta = reviewDifficultyDelta[rating] * (1.0 + retentionGap*0.5)
	}

	nextDifficulty := clamp(prior.Difficulty+difficultyDelta, minDifficulty, maxDifficulty)
	nextDue := now.Add(time.Duration(intervalDays * float64(24*time.Hour)))

	return State{
		DueAt:          FormatRFC3339UTC(nextDue),
		Stability:      rounded(nextStability),
		Difficulty:     rounded(nextDifficulty),
		Reps:           prior.Reps + 1,
		Lapses:         nextLapses,
		LastReviewedAt: FormatRFC3339UTC(now),
	}, nil
}

func firstReview(now time.Time, rating int) State {
	stability := firstStability[rating]
	difficulty := clamp(defaultDifficulty+firstDifficultyDelta[rating], minDifficulty, maxDifficulty)
	dueAt := now.Add(time.Duration(firstIntervalDays[rating] * float64(24*time.Hour)))

	lapses := 0
	if rating == 1 {
		lapses = 1
	}

	return State{
		DueAt:          FormatRFC3339UTC(dueAt),
		Stability:      rounded(stability),
		Difficulty:     rounded(difficulty),
		Reps:           1,
		Lapses:         lapses,
		LastReviewedAt: FormatRFC3339UTC(now),
	}
}
