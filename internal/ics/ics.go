// Package ics renders a calendar token's schedule items into an RFC5545
// iCalendar feed (spec §4.J), grounded directly on
// original_source/backend/runtime.py's _build_ics_payload /
// _resolve_event_window / _to_ics_datetime. No pack library implements
// iCalendar; this is a deliberate stdlib-only leaf (~two dozen lines of
// fixed-field text templating, not worth a dependency).
package ics

import (
	"strings"
	"time"

	"github.com/antigravity-dev/studybuddy/internal/fsrs"
)

const icsDateTimeLayout = "20060102T150405Z"

// Item is one schedule entry to render as a VEVENT. StartAt/EndAt are
// optional RFC3339-UTC overrides; when absent they default to DueAt.
type Item struct {
	ID       string
	CourseID string
	Title    string
	DueAt    string
	StartAt  string
	EndAt    string
}

func toICSDateTime(t time.Time) string {
	return t.UTC().Format(icsDateTimeLayout)
}

// resolveWindow computes the (DTSTART, DTEND) pair for one item: StartAt/
// EndAt when parseable, else DueAt; a zero-length or inverted window is
// widened to 60 minutes from DTSTART.
func resolveWindow(item Item, dueAt time.Time) (time.Time, time.Time) {
	start := dueAt
	if t, err := fsrs.ParseRFC3339UTC(item.StartAt); err == nil {
		start = t
	}
	end := dueAt
	if t, err := fsrs.ParseRFC3339UTC(item.EndAt); err == nil {
		end = t
	}
	if !end.After(start) {
		end = start.Add(60 * time.Minute)
	}
	return start, end
}

func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")
	return title
}

// BuildFeed renders userID's schedule items as a complete VCALENDAR
// document with CRLF line endings. Items with an unparseable DueAt are
// skipped.
func BuildFeed(userID string, items []Item) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//studybuddy//calendar//EN",
	}

	for _, item := range items {
		dueAt, err := fsrs.ParseRFC3339UTC(item.DueAt)
		if err != nil {
			continue
		}
		start, end := resolveWindow(item, dueAt)

		lines = append(lines,
			"BEGIN:VEVENT",
			"UID:studybuddy:"+userID+":"+item.CourseID+":"+item.ID,
			"DTSTAMP:"+toICSDateTime(dueAt),
			"DTSTART:"+toICSDateTime(start),
			"DTEND:"+toICSDateTime(end),
			"SUMMARY:"+normalizeTitle(item.Title),
			"DESCRIPTION:Course "+item.CourseID,
			"END:VEVENT",
		)
	}

	lines = append(lines, "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}
