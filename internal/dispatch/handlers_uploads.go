package dispatch

import (
	"context"
	"net/http"

	"github.com/antigravity-dev/studybuddy/internal/uploads"
)

type uploadRequestBody struct {
	CourseID           string `json:"courseId"`
	Filename           string `json:"filename"`
	ContentType        string `json:"contentType"`
	ContentLengthBytes *int64 `json:"contentLengthBytes"`
}

func (s *Server) handleUpload(w http.ResponseWriter, ctx context.Context, env Envelope) {
	var body uploadRequestBody
	if err := decodeJSONBody(env.Body, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.Uploads.Create(ctx, uploads.Request{
		CourseID:           body.CourseID,
		Filename:           body.Filename,
		ContentType:        body.ContentType,
		ContentLengthBytes: body.ContentLengthBytes,
	})
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
