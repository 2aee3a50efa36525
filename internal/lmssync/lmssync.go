// Package lmssync mirrors one user's Canvas courses, assignments, and
// course files into local storage, grounded on
// original_source/backend/runtime.py's _sync_canvas_assignments_for_user
// and _sync_canvas_materials_for_user (spec §4.H).
package lmssync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/canvasclient"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/ports"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

// Limits bounds how much of a course's file listing gets mirrored, mirroring
// spec §4.H's MAX_PER_COURSE / MAX_TOTAL / MAX_BYTES / allow-list knobs.
type Limits struct {
	MaxFileBytes               int64
	MaxFilesPerCourse          int
	MaxFilesTotal              int
	AllowedMaterialContentType []string
}

// Syncer performs a one-user LMS sync pass.
type Syncer struct {
	Canvas *canvasclient.Client
	Store  *store.Store
	Object ports.ObjectStore
	KB     ports.KBClient
	Limits Limits
	Logger *slog.Logger

	// SuppressKBTrigger skips this call's own per-user KB ingestion trigger.
	// The scheduled sync entrypoint (schedulerhook) sets this so it can fire
	// a single aggregate trigger across all users instead, per spec §4.H's
	// "one KB trigger per scheduled batch" rule.
	SuppressKBTrigger bool
}

// Result is the per-user outcome spec §4.H's step 5 describes.
type Result struct {
	CoursesUpserted   int
	ItemsUpserted     int
	MaterialsUpserted int
	MaterialsMirrored int
	KBStarted         bool
	KBJobID           string
	KBError           string
	FailedCourseIDs   []string
}

func (s *Syncer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func randomClientToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lmssync: generate client token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Syncer) allowedContentType(contentType, displayName string) bool {
	if len(s.Limits.AllowedMaterialContentType) == 0 {
		return true
	}
	for _, allowed := range s.Limits.AllowedMaterialContentType {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	// PDF-filename escape hatch: a material whose name says .pdf is kept
	// even when Canvas reports an unrecognized content type for it.
	return strings.HasSuffix(strings.ToLower(displayName), ".pdf")
}

// Sync runs step 1-4 of spec §4.H for one user's stored connection.
func (s *Syncer) Sync(ctx context.Context, userID string, conn models.CanvasConnection, updatedAt string) (Result, error) {
	courses, err := s.Canvas.FetchActiveCourses(ctx, conn.CanvasBaseURL, conn.AccessToken)
	if err != nil {
		return Result{}, err
	}

	var result Result
	failedSet := map[string]bool{}
	addFailure := func(courseID string) {
		if !failedSet[courseID] {
			failedSet[courseID] = true
			result.FailedCourseIDs = append(result.FailedCourseIDs, courseID)
		}
	}

	for _, course := range courses {
		if err := course.Validate(); err != nil {
			addFailure(course.ID)
			continue
		}
		if err := s.Store.PutCourse(ctx, userID, course); err != nil {
			return Result{}, fmt.Errorf("lmssync: put course %s: %w", course.ID, err)
		}
		result.CoursesUpserted++
	}

	for _, course := range courses {
		items, err := s.Canvas.FetchCourseAssignments(ctx, conn.CanvasBaseURL, conn.AccessToken, course.ID)
		if err != nil {
			if apperr.Is(err, apperr.KindAuthRequired) {
				s.logger().Warn("lmssync: canvas assignments access denied", "courseId", course.ID)
				continue
			}
			s.logger().Warn("lmssync: canvas assignments fetch failed", "courseId", course.ID, "error", err)
			addFailure(course.ID)
			continue
		}
		for _, item := range items {
			if err := item.Validate(); err != nil {
				continue
			}
			if err := s.Store.PutCanvasItem(ctx, userID, item); err != nil {
				return Result{}, fmt.Errorf("lmssync: put canvas item %s: %w", item.ID, err)
			}
			result.ItemsUpserted++
		}
	}

	filesRemainingGlobal := s.Limits.MaxFilesTotal
	for _, course := range courses {
		if s.Limits.MaxFilesTotal > 0 && filesRemainingGlobal <= 0 {
			break
		}
		materials, err := s.Canvas.FetchCourseFiles(ctx, conn.CanvasBaseURL, conn.AccessToken, course.ID)
		if err != nil {
			if apperr.Is(err, apperr.KindAuthRequired) {
				s.logger().Warn("lmssync: canvas materials access denied", "courseId", course.ID)
				continue
			}
			s.logger().Warn("lmssync: canvas materials fetch failed", "courseId", course.ID, "error", err)
			addFailure(course.ID)
			continue
		}

		if s.Limits.MaxFilesPerCourse > 0 && len(materials) > s.Limits.MaxFilesPerCourse {
			materials = materials[:s.Limits.MaxFilesPerCourse]
		}

		for _, material := range materials {
			if s.Limits.MaxFilesTotal > 0 && filesRemainingGlobal <= 0 {
				break
			}
			err := s.mirrorOne(ctx, userID, course.ID, conn, material, updatedAt)
			switch {
			case err == nil:
				result.MaterialsUpserted++
				result.MaterialsMirrored++
				filesRemainingGlobal--
			case isSkip(err):
				// Oversized or disallowed content type: silently skipped,
				// not a course failure.
			default:
				s.logger().Warn("lmssync: canvas material mirror failed",
					"courseId", course.ID, "canvasFileId", material.CanvasFileID, "error", err)
				addFailure(course.ID)
			}
		}
	}

	if result.MaterialsMirrored > 0 && !s.SuppressKBTrigger {
		token, err := randomClientToken()
		if err != nil {
			result.KBError = err.Error()
		} else if jobID, err := s.KB.Ingest(ctx, fmt.Sprintf("canvas-sync/%s", userID), token); err != nil {
			result.KBError = err.Error()
		} else {
			result.KBStarted = true
			result.KBJobID = jobID
		}
	}

	sort.Strings(result.FailedCourseIDs)
	return result, nil
}

// mirrorOne validates, downloads, stores, and upserts a single material.
// It returns errSkip for an oversized or disallowed-content-type material
// (a deliberate, non-failing skip), any other error for a genuine failure.
func (s *Syncer) mirrorOne(ctx context.Context, userID, courseID string, conn models.CanvasConnection, material models.CanvasMaterial, updatedAt string) error {
	if material.SizeBytes > 0 && s.Limits.MaxFileBytes > 0 && material.SizeBytes > s.Limits.MaxFileBytes {
		return errSkip
	}
	if !s.allowedContentType(material.ContentType, material.DisplayName) {
		return errSkip
	}

	body, downloadedContentType, err := s.Canvas.FetchFileBytes(ctx, material.DownloadURL, conn.AccessToken)
	if err != nil {
		return err
	}
	if s.Limits.MaxFileBytes > 0 && int64(len(body)) > s.Limits.MaxFileBytes {
		return errSkip
	}

	contentType := material.ContentType
	if downloadedContentType != "" {
		contentType = downloadedContentType
	}

	key := models.CanonicalMaterialObjectKey(userID, courseID, material.CanvasFileID, material.DisplayName)
	if err := s.Object.Put(ctx, key, body, contentType); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	material.CourseID = courseID
	material.S3Key = key
	material.ContentType = contentType
	material.UpdatedAt = updatedAt
	if err := material.Validate(); err != nil {
		return err
	}
	if err := s.Store.PutCanvasMaterial(ctx, userID, material); err != nil {
		return fmt.Errorf("put canvas material %s: %w", material.CanvasFileID, err)
	}
	return nil
}

// errSkip marks a deliberate, non-error skip (size/type rejection) that the
// caller must not surface as a mirror failure.
var errSkip = skipError{}

type skipError struct{}

func (skipError) Error() string { return "lmssync: material skipped by size/type policy" }

func isSkip(err error) bool {
	_, ok := err.(skipError)
	return ok
}
