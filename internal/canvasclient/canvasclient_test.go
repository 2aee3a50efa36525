package canvasclient

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeBaseURL(t *testing.T) {
	require.Equal(t, "https://school.instructure.com", NormalizeBaseURL("https://school.instructure.com/api/v1/"))
	require.Equal(t, "https://school.instructure.com", NormalizeBaseURL("https://school.instructure.com/"))
}

func TestFetchActiveCourses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 501, "name": "Algorithms", "term": {"name": "Fall 2026"}}]`))
	}))
	defer srv.Close()

	c := New("studybuddy-test/1.0")
	courses, err := c.FetchActiveCourses(t.Context(), srv.URL, "tok")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, "501", courses[0].ID)
	require.Equal(t, "Fall 2026", courses[0].Term)
	require.NotEmpty(t, courses[0].Color)
}

func TestFetchActiveCourses_AccessDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New("studybuddy-test/1.0")
	_, err := c.FetchActiveCourses(t.Context(), srv.URL, "tok")
	require.Error(t, err)
}

func TestFetchCourseAssignments_FiltersUnpublishedAndNoDueDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 1, "name": "HW1", "published": true, "due_at": "2026-08-01T10:00:00Z", "points_possible": 10},
			{"id": 2, "name": "HW2 (Final)", "published": true, "due_at": "2026-08-02T10:00:00Z", "points_possible": 20},
			{"id": 3, "name": "Unpublished", "published": false, "due_at": "2026-08-03T10:00:00Z"},
			{"id": 4, "name": "No due date", "published": true}
		]`))
	}))
	defer srv.Close()

	c := New("studybuddy-test/1.0")
	items, err := c.FetchCourseAssignments(t.Context(), srv.URL, "tok", "c1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "assignment", string(items[0].ItemType))
	require.Equal(t, "exam", string(items[1].ItemType))
}

func TestFetchCourseFiles_FiltersHiddenAndLocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 10, "display_name": "Notes.pdf", "content-type": "application/pdf", "size": 1024, "updated_at": "2026-07-01T00:00:00Z", "url": "https://files/10", "published": true},
			{"id": 11, "display_name": "Hidden.pdf", "hidden": true, "updated_at": "2026-07-02T00:00:00Z", "url": "https://files/11"},
			{"id": 12, "display_name": "Locked.pdf", "locked_for_user": true, "updated_at": "2026-07-03T00:00:00Z", "url": "https://files/12"}
		]`))
	}))
	defer srv.Close()

	c := New("studybuddy-test/1.0")
	materials, err := c.FetchCourseFiles(t.Context(), srv.URL, "tok", "c1")
	require.NoError(t, err)
	require.Len(t, materials, 1)
	require.Equal(t, "10", materials[0].CanvasFileID)
	require.Equal(t, "application/pdf", materials[0].ContentType)
}
