package dispatch

import (
	"context"
	"net/http"
	"strings"

	"github.com/antigravity-dev/studybuddy/internal/canvasclient"
	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/models"
)

type lmsConnectBody struct {
	CanvasBaseURL string `json:"canvasBaseUrl"`
	AccessToken   string `json:"accessToken"`
}

type lmsConnectResponse struct {
	UserID        string `json:"userId"`
	CanvasBaseURL string `json:"canvasBaseUrl"`
	UpdatedAt     string `json:"updatedAt"`
}

// handleLMSConnect stores a user's Canvas base URL/token pair, verifying the
// token against Canvas's own "who am I" endpoint before persisting it (spec
// §4.H "connect").
func (s *Server) handleLMSConnect(w http.ResponseWriter, ctx context.Context, env Envelope, userID string) {
	var body lmsConnectBody
	if err := decodeJSONBody(env.Body, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.CanvasBaseURL) == "" || strings.TrimSpace(body.AccessToken) == "" {
		s.writeError(w, http.StatusBadRequest, "canvasBaseUrl and accessToken are required")
		return
	}

	baseURL := canvasclient.NormalizeBaseURL(body.CanvasBaseURL)
	if _, err := s.Canvas.FetchCurrentUserID(ctx, baseURL, body.AccessToken); err != nil {
		s.writeErr(w, err)
		return
	}

	now := fsrs.FormatRFC3339UTC(s.now())
	conn := models.CanvasConnection{
		UserID:        userID,
		CanvasBaseURL: baseURL,
		AccessToken:   body.AccessToken,
		UpdatedAt:     now,
	}
	if err := s.Store.PutCanvasConnection(ctx, conn); err != nil {
		s.writeErr(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, lmsConnectResponse{
		UserID:        conn.UserID,
		CanvasBaseURL: conn.CanvasBaseURL,
		UpdatedAt:     conn.UpdatedAt,
	})
}

// handleLMSSync synchronously runs one user's LMS sync pass (spec §4.H).
func (s *Server) handleLMSSync(w http.ResponseWriter, ctx context.Context, env Envelope, userID string) {
	conn, err := s.Store.GetCanvasConnection(ctx, userID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	now := fsrs.FormatRFC3339UTC(s.now())
	result, err := s.LMSSync.Sync(ctx, userID, conn, now)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
