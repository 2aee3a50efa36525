package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/ics"
)

const calendarFeedWindow = 365 * 24 * time.Hour

func (s *Server) handleCalendarToken(w http.ResponseWriter, ctx context.Context, userID string) {
	record, err := s.Caltoken.Mint(ctx, userID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

// handleCalendarFeed resolves an opaque calendar token to its owning user
// and renders that user's upcoming schedule as an ICS feed (spec §4.B +
// §4.J). An unknown or revoked token is NotFound, matching Resolve's
// "revoked tokens are treated as missing" rule.
func (s *Server) handleCalendarFeed(w http.ResponseWriter, ctx context.Context, token string) {
	record, err := s.Caltoken.Resolve(ctx, token)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	courses, err := s.Store.ListCourses(ctx, record.UserID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	courseIDs := make([]string, 0, len(courses))
	for _, c := range courses {
		courseIDs = append(courseIDs, c.ID)
	}

	now := s.now()
	from := fsrs.FormatRFC3339UTC(now.Add(-24 * time.Hour))
	to := fsrs.FormatRFC3339UTC(now.Add(calendarFeedWindow))

	items, err := s.Store.ListUpcomingCanvasItems(ctx, record.UserID, courseIDs, from, to)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	icsItems := make([]ics.Item, 0, len(items))
	for _, item := range items {
		icsItems = append(icsItems, ics.Item{
			ID:       item.ID,
			CourseID: item.CourseID,
			Title:    item.Title,
			DueAt:    item.DueAt,
		})
	}

	feed := ics.BuildFeed(record.UserID, icsItems)
	s.writeText(w, http.StatusOK, "text/calendar", feed)
}
