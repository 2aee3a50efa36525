package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/caltoken"
	"github.com/antigravity-dev/studybuddy/internal/canvasclient"
	"github.com/antigravity-dev/studybuddy/internal/config"
	"github.com/antigravity-dev/studybuddy/internal/generation"
	"github.com/antigravity-dev/studybuddy/internal/lmssync"
	"github.com/antigravity-dev/studybuddy/internal/metrics"
	"github.com/antigravity-dev/studybuddy/internal/schedulerhook"
	"github.com/antigravity-dev/studybuddy/internal/store"
	"github.com/antigravity-dev/studybuddy/internal/study"
	"github.com/antigravity-dev/studybuddy/internal/temporal"
	"github.com/antigravity-dev/studybuddy/internal/uploads"
)

// IngestSubmitter starts the document-ingestion workflow (spec §4.G); the
// concrete implementation wraps a Temporal client (internal/temporal).
type IngestSubmitter interface {
	SubmitIngestWorkflow(ctx context.Context, in temporal.IngestWorkflowInput) error
}

// Server binds every domain component into spec §4.K's route table. Config
// is held behind a manager so an operator's SIGHUP reload (see cmd/studybuddyd)
// takes effect on the next request without restarting the listener.
type Server struct {
	Manager  config.ConfigManager
	Store    *store.Store
	Caltoken *caltoken.Minter
	Study    *study.Selector
	Gen      *generation.Generator
	Uploads  *uploads.Minter
	LMSSync  *lmssync.Syncer
	Canvas   *canvasclient.Client
	Ingest   IngestSubmitter
	Hook     *schedulerhook.Hook
	Logger   *slog.Logger
	NowFunc  func() time.Time

	httpServer *http.Server
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

// cfg returns the current configuration snapshot, re-read from the manager
// on every call so an in-flight SIGHUP reload is visible to the next request.
func (s *Server) cfg() *config.Config {
	return s.Manager.Get()
}

// Start begins listening on cfg.Bind, blocking until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	bind := s.cfg().Bind
	s.httpServer = &http.Server{
		Addr:        bind,
		Handler:     http.HandlerFunc(s.serveHTTP),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger().Info("dispatch server starting", "bind", bind)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) corsHeaders(w http.ResponseWriter) {
	cfg := s.cfg()
	w.Header().Set("Access-Control-Allow-Origin", cfg.CorsAllowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", cfg.CorsAllowMethods)
	w.Header().Set("Access-Control-Allow-Headers", cfg.CorsAllowHeaders)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	s.corsHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps err to spec §7's status/kind contract and writes it.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	status := apperr.StatusFor(err)
	s.writeError(w, status, err.Error())
}

func (s *Server) writeText(w http.ResponseWriter, status int, contentType, body string) {
	s.corsHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// serveHTTP is the single net/http entrypoint: it builds the normalized
// Envelope, handles OPTIONS preflight and the scheduled-event bypass, and
// otherwise resolves the principal and dispatches to the route table.
func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		metrics.Handler().ServeHTTP(w, r)
		return
	}

	env, err := fromHTTPRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if env.Method == http.MethodOptions {
		s.corsHeaders(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if isScheduledEventEnvelope(env) {
		s.handleScheduledEvent(w, r.Context())
		return
	}

	s.route(w, r.Context(), env)
}

func (s *Server) handleScheduledEvent(w http.ResponseWriter, ctx context.Context) {
	result, err := s.Hook.Run(ctx)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// route implements spec §4.K's route table over the normalized path.
func (s *Server) route(w http.ResponseWriter, ctx context.Context, env Envelope) {
	path := env.Path
	method := env.Method

	if path == "/health" && method == http.MethodGet {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	cfg := s.cfg()
	principal, hasPrincipal := resolvePrincipal(env, cfg.DemoMode, cfg.DemoUserID)

	switch {
	case path == "/courses" && method == http.MethodGet:
		s.requirePrincipal(w, hasPrincipal, func() { s.handleListCourses(w, ctx, principal) })
		return
	case path == "/uploads" && method == http.MethodPost:
		s.handleUpload(w, ctx, env)
		return
	case path == "/lms/connect" && method == http.MethodPost:
		s.requirePrincipal(w, hasPrincipal, func() { s.handleLMSConnect(w, ctx, env, principal) })
		return
	case path == "/lms/sync" && method == http.MethodPost:
		s.requirePrincipal(w, hasPrincipal, func() { s.handleLMSSync(w, ctx, env, principal) })
		return
	case path == "/docs/ingest" && method == http.MethodPost:
		s.handleDocsIngestSubmit(w, ctx, env)
		return
	case strings.HasPrefix(path, "/docs/ingest/") && method == http.MethodGet:
		s.handleDocsIngestStatus(w, ctx, strings.TrimPrefix(path, "/docs/ingest/"))
		return
	case path == "/generate/flashcards" && method == http.MethodPost:
		s.handleGenerateFlashcards(w, ctx, env)
		return
	case path == "/generate/flashcards-from-materials" && method == http.MethodPost:
		s.requirePrincipal(w, hasPrincipal, func() { s.handleGenerateFlashcardsFromMaterials(w, ctx, env, principal) })
		return
	case path == "/generate/practice-exam" && method == http.MethodPost:
		s.handleGeneratePracticeExam(w, ctx, env)
		return
	case path == "/chat" && method == http.MethodPost:
		s.handleChat(w, ctx, env)
		return
	case path == "/study/today" && method == http.MethodGet:
		s.requirePrincipal(w, hasPrincipal, func() { s.handleStudyToday(w, ctx, env, principal) })
		return
	case path == "/study/review" && method == http.MethodPost:
		s.handleStudyReview(w, ctx, env)
		return
	case path == "/study/mastery" && method == http.MethodGet:
		s.handleStudyMastery(w, ctx, env)
		return
	case path == "/calendar/token" && method == http.MethodPost:
		s.requirePrincipal(w, hasPrincipal, func() { s.handleCalendarToken(w, ctx, principal) })
		return
	case strings.HasPrefix(path, "/calendar/") && strings.HasSuffix(path, ".ics") && method == http.MethodGet:
		s.handleCalendarFeed(w, ctx, strings.TrimSuffix(strings.TrimPrefix(path, "/calendar/"), ".ics"))
		return
	}

	if idPath, op, ok := matchCourseSubresource(path); ok && method == http.MethodGet {
		s.requirePrincipal(w, hasPrincipal, func() {
			switch op {
			case "items":
				s.handleCourseItems(w, ctx, idPath, principal)
			case "materials":
				s.handleCourseMaterials(w, ctx, idPath, principal)
			}
		})
		return
	}

	s.writeError(w, http.StatusNotFound, "no route matches "+method+" "+path)
}

func (s *Server) requirePrincipal(w http.ResponseWriter, has bool, fn func()) {
	if !has {
		s.writeError(w, http.StatusUnauthorized, "a principal is required for this endpoint")
		return
	}
	fn()
}

// matchCourseSubresource matches "/courses/{id}/items" or
// "/courses/{id}/materials", returning the course id and the subresource.
func matchCourseSubresource(path string) (courseID, op string, ok bool) {
	rest, found := strings.CutPrefix(path, "/courses/")
	if !found {
		return "", "", false
	}
	for _, suffix := range []string{"/items", "/materials"} {
		if id, cut := strings.CutSuffix(rest, suffix); cut && id != "" {
			return id, strings.TrimPrefix(suffix, "/"), true
		}
	}
	return "", "", false
}
