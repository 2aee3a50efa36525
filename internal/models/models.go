// Package models defines the validated domain entities (spec §3) and their
// stable partition/sort-key derivations. Keys are derived only from
// immutable identifying fields -- never from mutable attributes like
// due dates -- so sort order can change without requiring a key rewrite.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/fsrs"
)

var (
	colorPattern     = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	unsafeKeyRune    = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// ItemType enumerates the recognized CanvasItem kinds.
type ItemType string

const (
	ItemAssignment ItemType = "assignment"
	ItemExam       ItemType = "exam"
	ItemQuiz       ItemType = "quiz"
)

func (t ItemType) valid() bool {
	switch t {
	case ItemAssignment, ItemExam, ItemQuiz:
		return true
	}
	return false
}

// Course is a user's enrolled course, mirrored from the LMS or a fixture.
type Course struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Term  string `json:"term"`
	Color string `json:"color"`
}

// Validate rejects a Course with a malformed color or empty required field.
func (c Course) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return apperr.Validation("course id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return apperr.Validation("course name is required")
	}
	if !colorPattern.MatchString(c.Color) {
		return apperr.Validation("course color must be #RRGGBB")
	}
	return nil
}

// CourseKey returns the (pk, sk) pair for storing a course under a user.
func CourseKey(userID, courseID string) (pk, sk string) {
	return "USER#" + userID, "COURSE#" + courseID
}

// CanvasItem is an assignment/exam/quiz with a due date.
type CanvasItem struct {
	ID             string   `json:"id"`
	CourseID       string   `json:"courseId"`
	Title          string   `json:"title"`
	ItemType       ItemType `json:"itemType"`
	DueAt          string   `json:"dueAt"`
	PointsPossible float64  `json:"pointsPossible"`
}

// Validate enforces the item-type enum, non-negative points, and an
// RFC3339-UTC due date.
func (i CanvasItem) Validate() error {
	if strings.TrimSpace(i.ID) == "" || strings.TrimSpace(i.CourseID) == "" {
		return apperr.Validation("canvas item id and courseId are required")
	}
	if !i.ItemType.valid() {
		return apperr.Validation("canvas item itemType must be assignment, exam, or quiz")
	}
	if i.PointsPossible < 0 {
		return apperr.Validation("canvas item pointsPossible must be >= 0")
	}
	if _, err := fsrs.ParseRFC3339UTC(i.DueAt); err != nil {
		return apperr.Validationf("canvas item dueAt must be RFC3339 UTC", err)
	}
	return nil
}

// CanvasItemKey returns the (pk, sk) pair scoping an item to a user+course.
func CanvasItemKey(userID, courseID, itemID string) (pk, sk string) {
	return "USER#" + userID + "#COURSE#" + courseID, "ITEM#" + itemID
}

// CanvasMaterial is a mirrored course file.
type CanvasMaterial struct {
	CanvasFileID string `json:"canvasFileId"`
	CourseID     string `json:"courseId"`
	DisplayName  string `json:"displayName"`
	ContentType  string `json:"contentType"`
	SizeBytes    int64  `json:"sizeBytes"`
	UpdatedAt    string `json:"updatedAt"`
	DownloadURL  string `json:"downloadUrl"`
	S3Key        string `json:"s3Key"`
}

func (m CanvasMaterial) Validate() error {
	if strings.TrimSpace(m.CanvasFileID) == "" || strings.TrimSpace(m.CourseID) == "" {
		return apperr.Validation("canvas material canvasFileId and courseId are required")
	}
	if m.SizeBytes < 0 {
		return apperr.Validation("canvas material sizeBytes must be >= 0")
	}
	if _, err := fsrs.ParseRFC3339UTC(m.UpdatedAt); err != nil {
		return apperr.Validationf("canvas material updatedAt must be RFC3339 UTC", err)
	}
	return nil
}

// CanvasMaterialKey returns the (pk, sk) pair for a mirrored material.
func CanvasMaterialKey(userID, courseID, canvasFileID string) (pk, sk string) {
	return "USER#" + userID + "#COURSE#" + courseID, "MATERIAL#" + canvasFileID
}

// SafeName replaces runs of characters outside [A-Za-z0-9._-] with '_', for
// use in object-store keys derived from untrusted display names.
func SafeName(name string) string {
	return unsafeKeyRune.ReplaceAllString(name, "_")
}

// CanonicalMaterialObjectKey returns the canonical object-store key for an
// LMS-mirrored material (spec §3, §6).
func CanonicalMaterialObjectKey(userID, courseID, canvasFileID, displayName string) string {
	return fmt.Sprintf("uploads/canvas-materials/%s/%s/%s/%s", userID, courseID, canvasFileID, SafeName(displayName))
}

// CanonicalUploadObjectKey returns the canonical object-store key for a
// directly uploaded document (spec §4.M).
func CanonicalUploadObjectKey(courseID, docID, filename string) string {
	return fmt.Sprintf("uploads/%s/%s/%s", courseID, docID, filename)
}

// CanvasConnection is a user's stored LMS credentials, at most one per user.
type CanvasConnection struct {
	UserID        string `json:"userId"`
	CanvasBaseURL string `json:"canvasBaseUrl"`
	AccessToken   string `json:"accessToken"`
	UpdatedAt     string `json:"updatedAt"`
}

// CanvasConnectionKey returns the (pk, sk) pair for a user's connection.
func CanvasConnectionKey(userID string) (pk, sk string) {
	return "USER#" + userID, "CANVAS_CONNECTION#default"
}

// Card is a generated flashcard, optionally carrying spaced-repetition state.
type Card struct {
	ID         string      `json:"id"`
	CourseID   string      `json:"courseId"`
	TopicID    string      `json:"topicId"`
	Prompt     string      `json:"prompt"`
	Answer     string      `json:"answer"`
	Citations  []string    `json:"citations"`
	FSRSState  *fsrs.State `json:"fsrsState,omitempty"`
	ReviewCount int        `json:"reviewCount"`
}

// DueAt mirrors fsrsState.dueAt when present, per spec §3's invariant.
func (c Card) DueAt() string {
	if c.FSRSState != nil {
		return c.FSRSState.DueAt
	}
	return ""
}

// CardKey returns the (pk, sk) pair for a card scoped to its course.
func CardKey(courseID, cardID string) (pk, sk string) {
	return "COURSE#" + courseID, "CARD#" + cardID
}

// IngestJobStatus enumerates the lifecycle of a document-ingestion job.
type IngestJobStatus string

const (
	IngestRunning  IngestJobStatus = "RUNNING"
	IngestFinished IngestJobStatus = "FINISHED"
	IngestFailed   IngestJobStatus = "FAILED"
)

// IngestJob tracks one document's extraction/ingestion lifecycle.
type IngestJob struct {
	JobID            string          `json:"jobId"`
	SourceDocID      string          `json:"sourceDocId"`
	CourseID         string          `json:"courseId"`
	SourceKey        string          `json:"sourceKey"`
	Status           IngestJobStatus `json:"status"`
	TextLength       int             `json:"textLength"`
	UsedTextract     bool            `json:"usedTextract"`
	UpdatedAt        string          `json:"updatedAt"`
	Error            string          `json:"error,omitempty"`
	KBIngestionJobID string          `json:"kbIngestionJobId,omitempty"`
	KBIngestionError string          `json:"kbIngestionError,omitempty"`
}

// Validate enforces the status<->error correspondence from spec §3.
func (j IngestJob) Validate() error {
	if j.Status == IngestFailed && j.Error == "" {
		return apperr.Validation("ingest job FAILED requires a non-empty error")
	}
	if j.Status != IngestFailed && j.Error != "" && j.Status == IngestFinished {
		// FINISHED jobs may still carry a non-fatal KB-trigger error; only
		// the status<->Error correspondence for FAILED is an invariant.
		return nil
	}
	return nil
}

// CalendarTokenRecord is an opaque token backing a user's ICS feed.
type CalendarTokenRecord struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Revoked   bool   `json:"revoked"`
	RevokedAt string `json:"revokedAt,omitempty"`
}

// Validate enforces the revoked<->revokedAt correspondence and monotonic
// timestamp ordering from spec §3.
func (r CalendarTokenRecord) Validate() error {
	if r.Revoked != (r.RevokedAt != "") {
		return apperr.Validation("calendar token revoked must correspond to revokedAt presence")
	}
	created, err := fsrs.ParseRFC3339UTC(r.CreatedAt)
	if err != nil {
		return apperr.Validationf("calendar token createdAt must be RFC3339 UTC", err)
	}
	updated, err := fsrs.ParseRFC3339UTC(r.UpdatedAt)
	if err != nil {
		return apperr.Validationf("calendar token updatedAt must be RFC3339 UTC", err)
	}
	if updated.Before(created) {
		return apperr.Validation("calendar token updatedAt must be >= createdAt")
	}
	if r.Revoked {
		revokedAt, err := fsrs.ParseRFC3339UTC(r.RevokedAt)
		if err != nil {
			return apperr.Validationf("calendar token revokedAt must be RFC3339 UTC", err)
		}
		if revokedAt.Before(updated) {
			return apperr.Validation("calendar token revokedAt must be >= updatedAt")
		}
	}
	return nil
}

// DecodeStrict unmarshals JSON into v, rejecting unknown top-level keys to
// keep the wire contract tight per spec §4.D.
func DecodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validationf("request body has an unexpected shape", err)
	}
	return nil
}
