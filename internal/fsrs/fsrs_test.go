package fsrs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := ParseRFC3339UTC(s)
	require.NoError(t, err)
	return ts
}

func TestSchedule_FirstGood(t *testing.T) {
	now := mustParse(t, "2026-09-01T10:15:00Z")
	state, err := Schedule(nil, 3, now)
	require.NoError(t, err)

	require.Equal(t, "2026-09-02T10:15:00Z", state.DueAt)
	require.Equal(t, 2.5, state.Stability)
	require.Equal(t, 4.7, state.Difficulty)
	require.Equal(t, 1, state.Reps)
	require.Equal(t, 0, state.Lapses)
	require.Equal(t, "2026-09-01T10:15:00Z", state.LastReviewedAt)
}

func TestSchedule_LapseAfterTwoGood(t *testing.T) {
	s1, err := Schedule(nil, 3, mustParse(t, "2026-09-01T10:15:00Z"))
	require.NoError(t, err)

	s2, err := Schedule(&s1, 4, mustParse(t, "2026-09-04T10:15:00Z"))
	require.NoError(t, err)

	s3, err := Schedule(&s2, 1, mustParse(t, "2026-09-09T10:15:00Z"))
	require.NoError(t, err)

	require.Equal(t, "2026-09-09T14:15:00Z", s3.DueAt)
	require.InDelta(t, 2.138088, s3.Stability, 1e-6)
	require.InDelta(t, 5.127273, s3.Difficulty, 1e-6)
	require.Equal(t, 3, s3.Reps)
	require.Equal(t, 1, s3.Lapses)
	require.Equal(t, "2026-09-09T10:15:00Z", s3.LastReviewedAt)
}

func TestSchedule_RejectsOutOfRangeRating(t *testing.T) {
	_, err := Schedule(nil, 5, time.Now())
	require.Error(t, err)
	_, err = Schedule(nil, 0, time.Now())
	require.Error(t, err)
}

func TestSchedule_InvariantsHold(t *testing.T) {
	prior := &State{
		DueAt:          "2026-01-01T00:00:00Z",
		Stability:      1.0,
		Difficulty:     5.0,
		Reps:           2,
		Lapses:         0,
		LastReviewedAt: "2026-01-01T00:00:00Z",
	}
	for rating := 1; rating <= 4; rating++ {
		now := mustParse(t, "2026-01-05T00:00:00Z")
		next, err := Schedule(prior, rating, now)
		require.NoError(t, err)
		require.GreaterOrEqual(t, next.Stability, 0.15)
		require.GreaterOrEqual(t, next.Difficulty, 1.0)
		require.LessOrEqual(t, next.Difficulty, 10.0)
		require.Equal(t, prior.Reps+1, next.Reps)
		wantLapses := prior.Lapses
		if rating == 1 {
			wantLapses++
		}
		require.Equal(t, wantLapses, next.Lapses)

		dueAt, err := ParseRFC3339UTC(next.DueAt)
		require.NoError(t, err)
		lastReviewed, err := ParseRFC3339UTC(next.LastReviewedAt)
		require.NoError(t, err)
		require.True(t, !dueAt.Before(lastReviewed))
	}
}

func TestParseRFC3339UTC_RejectsMalformed(t *testing.T) {
	_, err := ParseRFC3339UTC("2026-09-01 10:15:00")
	require.Error(t, err)
	_, err = ParseRFC3339UTC("2026-09-01T10:15:00")
	require.Error(t, err)
}
