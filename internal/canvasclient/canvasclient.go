// Package canvasclient talks to a Canvas LMS instance on a user's behalf:
// listing active courses, published assignments/exams/quizzes, and visible
// course files (spec §4.C). It is a thin REST client over stdlib net/http,
// mirroring the teacher's plain-net/http style used throughout its own
// upstream calls.
package canvasclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/models"
)

const defaultTimeout = 20 * time.Second

var (
	examPattern = regexp.MustCompile(`(?i)\b(midterm|final|exam)\b`)
	quizPattern = regexp.MustCompile(`(?i)\bquiz\b`)
	colorPalette = []string{"#3366FF", "#22AA88", "#CC6655", "#4477AA", "#AA8844", "#1177AA"}
)

// Client is a Canvas REST client scoped to one base URL and access token.
type Client struct {
	httpClient *http.Client
	userAgent  string

	// courseListCache avoids re-fetching a user's active-course list
	// repeatedly within one sync pass (e.g. once per assignment fetch).
	courseListCache *lru.Cache[string, []models.Course]
}

// New constructs a Client. userAgent is sent on every request per spec §6's
// CANVAS_USER_AGENT configuration.
func New(userAgent string) *Client {
	cache, _ := lru.New[string, []models.Course](64)
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  userAgent,
		courseListCache: cache,
	}
}

// NormalizeBaseURL strips a trailing "/api/v1" and trailing slash from a
// user-provided Canvas base URL so callers can append "/api/v1/..." safely.
func NormalizeBaseURL(baseURL string) string {
	normalized := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(strings.ToLower(normalized), "/api/v1") {
		normalized = normalized[:len(normalized)-len("/api/v1")]
	}
	return normalized
}

func (c *Client) doJSON(ctx context.Context, rawURL, token string) (any, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("canvasclient: build request for %s: %w", rawURL, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, apperr.Upstream("canvas request failed for "+rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, apperr.Upstream("canvas response read failed for "+rawURL, err)
	}

	if resp.StatusCode == http.StatusForbidden {
		return nil, nil, apperr.AuthRequired(fmt.Sprintf("canvas access denied (403) for %s", rawURL))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, apperr.Upstream(fmt.Sprintf("canvas request failed (%d) for %s: %s", resp.StatusCode, rawURL, string(body)), nil)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, apperr.Upstream("canvas response was not valid JSON for "+rawURL, err)
	}
	return payload, resp.Header, nil
}

func extractNextLink(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		segment := strings.TrimSpace(part)
		if !strings.Contains(segment, `rel="next"`) {
			continue
		}
		start := strings.Index(segment, "<")
		end := strings.Index(segment, ">")
		if start < 0 || end < 0 || end < start {
			continue
		}
		return segment[start+1 : end]
	}
	return ""
}

func (c *Client) getPaginated(ctx context.Context, rawURL, token string) ([]map[string]any, error) {
	var rows []map[string]any
	nextURL := rawURL
	for nextURL != "" {
		payload, headers, err := c.doJSON(ctx, nextURL, token)
		if err != nil {
			return nil, err
		}
		list, ok := payload.([]any)
		if !ok {
			return nil, apperr.Upstream("canvas response expected list for "+nextURL, nil)
		}
		for _, item := range list {
			if row, ok := item.(map[string]any); ok {
				rows = append(rows, row)
			}
		}
		nextURL = extractNextLink(headers.Get("Link"))
	}
	return rows, nil
}

func toRFC3339UTC(value string) (string, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05.999999999Z07:00", value)
		if err != nil {
			return "", fmt.Errorf("canvasclient: unparseable timestamp %q: %w", value, err)
		}
	}
	return fsrs.FormatRFC3339UTC(t.UTC()), nil
}

func courseColor(courseID string) string {
	var checksum int
	for _, r := range courseID {
		checksum += int(r)
	}
	return colorPalette[checksum%len(colorPalette)]
}

func str(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func idString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatInt(int64(t), 10), true
	default:
		return "", false
	}
}

// FetchActiveCourses fetches the caller's active Canvas courses, sorted by
// name, mapped to the Course contract shape (spec §4.C).
func (c *Client) FetchActiveCourses(ctx context.Context, baseURL, token string) ([]models.Course, error) {
	root := NormalizeBaseURL(baseURL)
	if cached, ok := c.courseListCache.Get(root + "|" + token); ok {
		return cached, nil
	}

	q := url.Values{"enrollment_state": {"active"}, "per_page": {"100"}}
	rows, err := c.getPaginated(ctx, root+"/api/v1/courses?"+q.Encode(), token)
	if err != nil {
		return nil, err
	}

	var courses []models.Course
	for _, row := range rows {
		idVal, ok := idString(row["id"])
		name, nameOK := str(row["name"])
		if !ok || !nameOK || strings.TrimSpace(name) == "" {
			continue
		}

		term := "Canvas"
		if termObj, ok := row["term"].(map[string]any); ok {
			if termName, ok := str(termObj["name"]); ok && strings.TrimSpace(termName) != "" {
				term = strings.TrimSpace(termName)
			}
		}

		courses = append(courses, models.Course{
			ID:    idVal,
			Name:  strings.TrimSpace(name),
			Term:  term,
			Color: courseColor(idVal),
		})
	}

	sort.Slice(courses, func(i, j int) bool {
		return strings.ToLower(courses[i].Name) < strings.ToLower(courses[j].Name)
	})

	c.courseListCache.Add(root+"|"+token, courses)
	return courses, nil
}

// FetchCurrentUserID fetches the Canvas caller's own user id. /lms/connect
// calls it to verify an access token before storing the connection.
func (c *Client) FetchCurrentUserID(ctx context.Context, baseURL, token string) (string, error) {
	root := NormalizeBaseURL(baseURL)
	payload, _, err := c.doJSON(ctx, root+"/api/v1/users/self/profile", token)
	if err != nil {
		return "", err
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return "", apperr.Upstream("canvas response expected object for /api/v1/users/self/profile", nil)
	}
	id, ok := idString(obj["id"])
	if !ok {
		return "", apperr.Upstream("canvas response missing user id for /api/v1/users/self/profile", nil)
	}
	return id, nil
}

func assignmentItemType(row map[string]any) models.ItemType {
	title, _ := str(row["name"])
	if row["quiz_id"] != nil || quizPattern.MatchString(title) {
		return models.ItemQuiz
	}
	if examPattern.MatchString(title) {
		return models.ItemExam
	}
	return models.ItemAssignment
}

// FetchCourseAssignments fetches published assignments with due dates for a
// course, sorted by due date.
func (c *Client) FetchCourseAssignments(ctx context.Context, baseURL, token, courseID string) ([]models.CanvasItem, error) {
	root := NormalizeBaseURL(baseURL)
	q := url.Values{"per_page": {"100"}, "order_by": {"due_at"}}
	rows, err := c.getPaginated(ctx, fmt.Sprintf("%s/api/v1/courses/%s/assignments?%s", root, courseID, q.Encode()), token)
	if err != nil {
		return nil, err
	}

	var items []models.CanvasItem
	for _, row := range rows {
		if published, _ := row["published"].(bool); !published {
			continue
		}
		dueAtRaw, ok := str(row["due_at"])
		if !ok || strings.TrimSpace(dueAtRaw) == "" {
			continue
		}
		assignmentID, idOK := idString(row["id"])
		title, titleOK := str(row["name"])
		if !idOK || !titleOK || strings.TrimSpace(title) == "" {
			continue
		}
		dueAt, err := toRFC3339UTC(dueAtRaw)
		if err != nil {
			continue
		}

		points := 0.0
		if p, ok := row["points_possible"].(float64); ok && p >= 0 {
			points = p
		}

		items = append(items, models.CanvasItem{
			ID:             assignmentID,
			CourseID:       courseID,
			Title:          strings.TrimSpace(title),
			ItemType:       assignmentItemType(row),
			DueAt:          dueAt,
			PointsPossible: points,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].DueAt < items[j].DueAt })
	return items, nil
}

func normalizeContentType(row map[string]any) string {
	if ct, ok := str(row["content-type"]); ok && strings.TrimSpace(ct) != "" {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	if ct, ok := str(row["content_type"]); ok && strings.TrimSpace(ct) != "" {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return "application/octet-stream"
}

// FetchCourseFiles fetches visible, published course files for a course,
// sorted by updated_at descending.
func (c *Client) FetchCourseFiles(ctx context.Context, baseURL, token, courseID string) ([]models.CanvasMaterial, error) {
	root := NormalizeBaseURL(baseURL)
	q := url.Values{"per_page": {"100"}, "sort": {"updated_at"}, "order": {"desc"}}
	rows, err := c.getPaginated(ctx, fmt.Sprintf("%s/api/v1/courses/%s/files?%s", root, courseID, q.Encode()), token)
	if err != nil {
		return nil, err
	}

	var materials []models.CanvasMaterial
	for _, row := range rows {
		if published, ok := row["published"].(bool); ok && !published {
			continue
		}
		if hidden, ok := row["hidden"].(bool); ok && hidden {
			continue
		}
		if locked, ok := row["locked_for_user"].(bool); ok && locked {
			continue
		}

		fileID, ok := idString(row["id"])
		if !ok {
			continue
		}

		displayName, ok := str(row["display_name"])
		if !ok || strings.TrimSpace(displayName) == "" {
			displayName, ok = str(row["filename"])
			if !ok || strings.TrimSpace(displayName) == "" {
				continue
			}
		}

		updatedAtRaw, ok := str(row["updated_at"])
		if !ok || strings.TrimSpace(updatedAtRaw) == "" {
			continue
		}
		updatedAt, err := toRFC3339UTC(updatedAtRaw)
		if err != nil {
			continue
		}

		downloadURL, ok := str(row["url"])
		if !ok || strings.TrimSpace(downloadURL) == "" {
			continue
		}

		size := int64(0)
		if s, ok := row["size"].(float64); ok && s >= 0 {
			size = int64(s)
		}

		materials = append(materials, models.CanvasMaterial{
			CanvasFileID: fileID,
			CourseID:     courseID,
			DisplayName:  strings.TrimSpace(displayName),
			ContentType:  normalizeContentType(row),
			SizeBytes:    size,
			UpdatedAt:    updatedAt,
			DownloadURL:  strings.TrimSpace(downloadURL),
		})
	}

	sort.Slice(materials, func(i, j int) bool { return materials[i].UpdatedAt > materials[j].UpdatedAt })
	return materials, nil
}

// FetchFileBytes downloads a file's raw bytes plus its content type.
func (c *Client) FetchFileBytes(ctx context.Context, downloadURL, token string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("canvasclient: build file request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", apperr.Upstream("canvas file request failed for "+downloadURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperr.Upstream("canvas file response read failed for "+downloadURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", apperr.Upstream(fmt.Sprintf("canvas file request failed (%d) for %s", resp.StatusCode, downloadURL), nil)
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	return body, contentType, nil
}
