package lmssync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/studybuddy/internal/canvasclient"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/ports"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

type fakeObjectStore struct {
	put map[string][]byte
}

func newFakeObjectStore() *fakeObjectStore { return &fakeObjectStore{put: map[string][]byte{}} }

func (f *fakeObjectStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	return f.put[key], "", nil
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.put[key] = data
	return nil
}

func (f *fakeObjectStore) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	return "", nil
}

type fakeKB struct {
	jobID string
	err   error
	calls int
}

func (f *fakeKB) Retrieve(ctx context.Context, filterCourseID, query string, n int) ([]ports.RetrievalRow, error) {
	return nil, nil
}

func (f *fakeKB) Ingest(ctx context.Context, sourceKey, clientToken string) (string, error) {
	f.calls++
	return f.jobID, f.err
}

func openTestDB(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestCanvasServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 501, "name": "Algorithms", "term": {"name": "Fall 2026"}}]`))
	})
	mux.HandleFunc("/api/v1/courses/501/assignments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "name": "HW1", "published": true, "due_at": "2026-08-01T10:00:00Z", "points_possible": 10}]`))
	})
	mux.HandleFunc("/api/v1/courses/501/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 10, "display_name": "Notes.pdf", "content-type": "application/pdf", "size": 100, "updated_at": "2026-07-01T00:00:00Z", "url": "` + srv.URL + `/files/10", "published": true},
			{"id": 11, "display_name": "Huge.pdf", "content-type": "application/pdf", "size": 999999999, "updated_at": "2026-07-02T00:00:00Z", "url": "` + srv.URL + `/files/11", "published": true}
		]`))
	})
	mux.HandleFunc("/files/10", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pdf bytes"))
	})
	mux.HandleFunc("/files/11", func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 999999999))
	})
	srv = httptest.NewServer(mux)
	return srv
}

func TestSync_UpsertsCoursesItemsAndMaterials(t *testing.T) {
	srv := newTestCanvasServer(t)
	defer srv.Close()

	db := openTestDB(t)
	objects := newFakeObjectStore()
	kb := &fakeKB{jobID: "kb-job-1"}

	s := &Syncer{
		Canvas: canvasclient.New("studybuddy-test/1.0"),
		Store:  db,
		Object: objects,
		KB:     kb,
		Limits: Limits{MaxFileBytes: 1000, MaxFilesPerCourse: 10, MaxFilesTotal: 10},
	}

	conn := models.CanvasConnection{UserID: "u1", CanvasBaseURL: srv.URL, AccessToken: "tok"}
	result, err := s.Sync(context.Background(), "u1", conn, "2026-07-30T00:00:00Z")
	require.NoError(t, err)

	require.Equal(t, 1, result.CoursesUpserted)
	require.Equal(t, 1, result.ItemsUpserted)
	require.Equal(t, 1, result.MaterialsUpserted)
	require.Equal(t, 1, result.MaterialsMirrored)
	require.True(t, result.KBStarted)
	require.Equal(t, "kb-job-1", result.KBJobID)
	require.Equal(t, 1, kb.calls)
	require.Empty(t, result.FailedCourseIDs)

	courses, err := db.ListCourses(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, courses, 1)
}

func TestSync_OversizedMaterialSkippedWithoutFailure(t *testing.T) {
	srv := newTestCanvasServer(t)
	defer srv.Close()

	db := openTestDB(t)
	s := &Syncer{
		Canvas: canvasclient.New("studybuddy-test/1.0"),
		Store:  db,
		Object: newFakeObjectStore(),
		KB:     &fakeKB{},
		Limits: Limits{MaxFileBytes: 1000, MaxFilesPerCourse: 10, MaxFilesTotal: 10},
	}

	conn := models.CanvasConnection{UserID: "u1", CanvasBaseURL: srv.URL, AccessToken: "tok"}
	result, err := s.Sync(context.Background(), "u1", conn, "2026-07-30T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, 1, result.MaterialsMirrored)
	require.Empty(t, result.FailedCourseIDs)
}

func TestSync_NoMirrorSkipsKBTrigger(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	db := openTestDB(t)
	kb := &fakeKB{}
	s := &Syncer{
		Canvas: canvasclient.New("studybuddy-test/1.0"),
		Store:  db,
		Object: newFakeObjectStore(),
		KB:     kb,
		Limits: Limits{MaxFileBytes: 1000, MaxFilesPerCourse: 10, MaxFilesTotal: 10},
	}

	conn := models.CanvasConnection{UserID: "u1", CanvasBaseURL: srv.URL, AccessToken: "tok"}
	result, err := s.Sync(context.Background(), "u1", conn, "2026-07-30T00:00:00Z")
	require.NoError(t, err)
	require.False(t, result.KBStarted)
	require.Equal(t, 0, kb.calls)
}

func TestSync_AssignmentFetchFailureRecordsFailedCourse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 501, "name": "Algorithms", "term": {"name": "Fall 2026"}}]`))
	})
	mux.HandleFunc("/api/v1/courses/501/assignments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v1/courses/501/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	db := openTestDB(t)
	s := &Syncer{
		Canvas: canvasclient.New("studybuddy-test/1.0"),
		Store:  db,
		Object: newFakeObjectStore(),
		KB:     &fakeKB{},
		Limits: Limits{MaxFileBytes: 1000, MaxFilesPerCourse: 10, MaxFilesTotal: 10},
	}

	conn := models.CanvasConnection{UserID: "u1", CanvasBaseURL: srv.URL, AccessToken: "tok"}
	result, err := s.Sync(context.Background(), "u1", conn, "2026-07-30T00:00:00Z")
	require.NoError(t, err)
	require.Equal(t, []string{"501"}, result.FailedCourseIDs)
}

func TestSync_AccessDeniedSkippedSilently(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courses", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 501, "name": "Algorithms", "term": {"name": "Fall 2026"}}]`))
	})
	mux.HandleFunc("/api/v1/courses/501/assignments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/api/v1/courses/501/files", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	db := openTestDB(t)
	s := &Syncer{
		Canvas: canvasclient.New("studybuddy-test/1.0"),
		Store:  db,
		Object: newFakeObjectStore(),
		KB:     &fakeKB{},
		Limits: Limits{MaxFileBytes: 1000, MaxFilesPerCourse: 10, MaxFilesTotal: 10},
	}

	conn := models.CanvasConnection{UserID: "u1", CanvasBaseURL: srv.URL, AccessToken: "tok"}
	result, err := s.Sync(context.Background(), "u1", conn, "2026-07-30T00:00:00Z")
	require.NoError(t, err)
	require.Empty(t, result.FailedCourseIDs)
}
