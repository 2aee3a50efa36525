package dispatch

import (
	"context"
	"net/http"
)

func (s *Server) handleListCourses(w http.ResponseWriter, ctx context.Context, userID string) {
	courses, err := s.Store.ListCourses(ctx, userID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

func (s *Server) handleCourseItems(w http.ResponseWriter, ctx context.Context, courseID, userID string) {
	if _, err := s.Store.GetCourse(ctx, userID, courseID); err != nil {
		s.writeErr(w, err)
		return
	}
	items, err := s.Store.ListCanvasItems(ctx, userID, courseID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// publicMaterial is the /courses/{id}/materials wire shape with
// downloadUrl/s3Key stripped (spec §4.K "never leak object-store location").
type publicMaterial struct {
	CanvasFileID string `json:"canvasFileId"`
	CourseID     string `json:"courseId"`
	DisplayName  string `json:"displayName"`
	ContentType  string `json:"contentType"`
	SizeBytes    int64  `json:"sizeBytes"`
	UpdatedAt    string `json:"updatedAt"`
}

func (s *Server) handleCourseMaterials(w http.ResponseWriter, ctx context.Context, courseID, userID string) {
	if _, err := s.Store.GetCourse(ctx, userID, courseID); err != nil {
		s.writeErr(w, err)
		return
	}
	materials, err := s.Store.ListCanvasMaterials(ctx, userID, courseID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out := make([]publicMaterial, 0, len(materials))
	for _, m := range materials {
		out = append(out, publicMaterial{
			CanvasFileID: m.CanvasFileID,
			CourseID:     m.CourseID,
			DisplayName:  m.DisplayName,
			ContentType:  m.ContentType,
			SizeBytes:    m.SizeBytes,
			UpdatedAt:    m.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"materials": out})
}
