package ics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildFeed_StableUIDAndCRLF(t *testing.T) {
	feed := BuildFeed("u1", []Item{
		{ID: "item1", CourseID: "course1", Title: "Midterm", DueAt: "2026-08-01T10:00:00Z"},
	})
	require.True(t, strings.HasPrefix(feed, "BEGIN:VCALENDAR\r\n"))
	require.True(t, strings.HasSuffix(feed, "END:VCALENDAR\r\n"))
	require.Contains(t, feed, "UID:studybuddy:u1:course1:item1\r\n")
	require.Contains(t, feed, "DTSTART:20260801T100000Z\r\n")
	require.NotContains(t, feed, "\n\n")
}

func TestBuildFeed_DefaultsEndToSixtyMinutesWhenInverted(t *testing.T) {
	feed := BuildFeed("u1", []Item{
		{ID: "item1", CourseID: "course1", Title: "Quiz", DueAt: "2026-08-01T10:00:00Z", StartAt: "2026-08-01T10:00:00Z", EndAt: "2026-08-01T09:00:00Z"},
	})
	require.Contains(t, feed, "DTSTART:20260801T100000Z\r\n")
	require.Contains(t, feed, "DTEND:20260801T110000Z\r\n")
}

func TestBuildFeed_HonorsExplicitStartAndEnd(t *testing.T) {
	feed := BuildFeed("u1", []Item{
		{ID: "item1", CourseID: "course1", Title: "Office hours", DueAt: "2026-08-01T10:00:00Z", StartAt: "2026-08-01T14:00:00Z", EndAt: "2026-08-01T15:30:00Z"},
	})
	require.Contains(t, feed, "DTSTART:20260801T140000Z\r\n")
	require.Contains(t, feed, "DTEND:20260801T153000Z\r\n")
	require.Contains(t, feed, "DTSTAMP:20260801T100000Z\r\n")
}

func TestBuildFeed_NormalizesNewlinesInTitle(t *testing.T) {
	feed := BuildFeed("u1", []Item{
		{ID: "item1", CourseID: "course1", Title: "Line1\nLine2\r\n", DueAt: "2026-08-01T10:00:00Z"},
	})
	require.Contains(t, feed, "SUMMARY:Line1 Line2  \r\n")
}

func TestBuildFeed_SkipsUnparseableDueAt(t *testing.T) {
	feed := BuildFeed("u1", []Item{
		{ID: "item1", CourseID: "course1", Title: "Bad", DueAt: "not-a-date"},
	})
	require.NotContains(t, feed, "BEGIN:VEVENT")
}
