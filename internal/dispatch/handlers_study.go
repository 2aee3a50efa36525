package dispatch

import (
	"context"
	"net/http"
	"strings"

	"github.com/antigravity-dev/studybuddy/internal/study"
)

func (s *Server) handleStudyToday(w http.ResponseWriter, ctx context.Context, env Envelope, userID string) {
	courseID := strings.TrimSpace(env.Query.Get("courseId"))
	if courseID == "" {
		s.writeError(w, http.StatusBadRequest, "courseId query parameter is required")
		return
	}
	examID := env.Query.Get("examId")

	cards, err := s.Study.Today(ctx, userID, courseID, examID, s.now())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

type studyReviewBody struct {
	CardID     string `json:"cardId"`
	CourseID   string `json:"courseId"`
	Rating     int    `json:"rating"`
	ReviewedAt string `json:"reviewedAt"`
}

func (s *Server) handleStudyReview(w http.ResponseWriter, ctx context.Context, env Envelope) {
	var body studyReviewBody
	if err := decodeJSONBody(env.Body, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.CardID) == "" || strings.TrimSpace(body.CourseID) == "" {
		s.writeError(w, http.StatusBadRequest, "cardId and courseId are required")
		return
	}
	if body.Rating < 1 || body.Rating > 5 {
		s.writeError(w, http.StatusBadRequest, "rating must be an integer from 1 to 5")
		return
	}

	err := s.Study.Review(ctx, study.ReviewInput{
		CardID:     body.CardID,
		CourseID:   body.CourseID,
		Rating:     body.Rating,
		ReviewedAt: body.ReviewedAt,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStudyMastery(w http.ResponseWriter, ctx context.Context, env Envelope) {
	courseID := strings.TrimSpace(env.Query.Get("courseId"))
	if courseID == "" {
		s.writeError(w, http.StatusBadRequest, "courseId query parameter is required")
		return
	}

	mastery, err := s.Study.Mastery(ctx, courseID, s.now())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"mastery": mastery})
}
