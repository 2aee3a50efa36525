package dispatch

import (
	"context"
	"net/http"
	"strings"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/generation"
)

const defaultGenerationCount = 10

func clampCount(n int) int {
	if n <= 0 {
		return defaultGenerationCount
	}
	if n > 50 {
		return 50
	}
	return n
}

type generateFlashcardsBody struct {
	CourseID string `json:"courseId"`
	Count    int    `json:"count"`
}

func (s *Server) handleGenerateFlashcards(w http.ResponseWriter, ctx context.Context, env Envelope) {
	var body generateFlashcardsBody
	if err := decodeJSONBody(env.Body, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.CourseID) == "" {
		s.writeError(w, http.StatusBadRequest, "courseId is required")
		return
	}

	cards, err := s.Gen.GenerateFlashcards(ctx, body.CourseID, clampCount(body.Count))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	for _, c := range cards {
		if err := s.Store.PutCard(ctx, c); err != nil {
			s.writeErr(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

type generateFromMaterialsBody struct {
	CourseID    string   `json:"courseId"`
	MaterialIDs []string `json:"materialIds"`
	Count       int      `json:"count"`
}

// handleGenerateFlashcardsFromMaterials resolves each requested material id
// to its object-store key, rejecting any id that isn't one of the caller's
// own materials for this course before handing the resolved keys to the
// generator (spec §4.F "materialKeys must belong to the caller").
func (s *Server) handleGenerateFlashcardsFromMaterials(w http.ResponseWriter, ctx context.Context, env Envelope, userID string) {
	var body generateFromMaterialsBody
	if err := decodeJSONBody(env.Body, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.CourseID) == "" || len(body.MaterialIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "courseId and materialIds are required")
		return
	}

	materialKeys := make([]string, 0, len(body.MaterialIDs))
	for _, materialID := range body.MaterialIDs {
		material, err := s.Store.GetCanvasMaterial(ctx, userID, body.CourseID, materialID)
		if err != nil {
			s.writeErr(w, apperr.NotFound("material "+materialID+" not found for this course"))
			return
		}
		materialKeys = append(materialKeys, material.S3Key)
	}

	cards, err := s.Gen.GenerateFlashcardsFromMaterials(ctx, body.CourseID, materialKeys, clampCount(body.Count))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	for _, c := range cards {
		if err := s.Store.PutCard(ctx, c); err != nil {
			s.writeErr(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"cards": cards})
}

type generatePracticeExamBody struct {
	CourseID      string `json:"courseId"`
	QuestionCount int    `json:"questionCount"`
}

func (s *Server) handleGeneratePracticeExam(w http.ResponseWriter, ctx context.Context, env Envelope) {
	var body generatePracticeExamBody
	if err := decodeJSONBody(env.Body, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.CourseID) == "" {
		s.writeError(w, http.StatusBadRequest, "courseId is required")
		return
	}

	exam, err := s.Gen.GeneratePracticeExam(ctx, body.CourseID, clampCount(body.QuestionCount))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, exam)
}

type chatBody struct {
	CourseID      string                     `json:"courseId"`
	Question      string                     `json:"question"`
	CanvasContext string                     `json:"canvasContext"`
	History       []generation.ChatMessage   `json:"history"`
	Materials     []generation.MaterialRef   `json:"materials"`
}

func (s *Server) handleChat(w http.ResponseWriter, ctx context.Context, env Envelope) {
	var body chatBody
	if err := decodeJSONBody(env.Body, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.CourseID) == "" || strings.TrimSpace(body.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "courseId and question are required")
		return
	}

	var answer *generation.ChatAnswer
	var err error
	if len(body.History) > 0 || len(body.Materials) > 0 {
		answer, err = s.Gen.ChatAnswerWithActions(ctx, body.CourseID, body.Question, body.History, body.CanvasContext, body.Materials)
	} else {
		answer, err = s.Gen.Chat(ctx, body.CourseID, body.Question, body.CanvasContext)
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}
