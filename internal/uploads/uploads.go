// Package uploads validates and mints presigned URLs for direct document
// uploads (spec §4.M), grounded on original_source/backend/uploads.py's
// parse_upload_request / build_s3_key / create_upload.
package uploads

import (
	"context"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/ports"
)

const (
	maxOfficeDocBytes  = 50 * 1024 * 1024
	uploadURLExpiry    = 15 * time.Minute
	contentTypePDF     = "pdf"
	contentTypePlain   = "plain"
	contentTypePPTX    = "pptx"
	contentTypeDOCX    = "docx"
	contentTypeDOC     = "doc"
)

var courseIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// contentTypeMIME maps the wire-level contentType enum to the MIME type
// stored in object metadata and returned to the caller.
var contentTypeMIME = map[string]string{
	contentTypePDF:   "application/pdf",
	contentTypePlain: "text/plain",
	contentTypePPTX:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	contentTypeDOCX:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	contentTypeDOC:   "application/msword",
}

var contentTypeExtension = map[string]string{
	contentTypePDF:   ".pdf",
	contentTypePlain: ".txt",
	contentTypePPTX:  ".pptx",
	contentTypeDOCX:  ".docx",
	contentTypeDOC:   ".doc",
}

var officeContentTypes = map[string]bool{
	contentTypePPTX: true,
	contentTypeDOCX: true,
	contentTypeDOC:  true,
}

// Request is the validated /uploads request body.
type Request struct {
	CourseID          string
	Filename          string
	ContentType       string
	ContentLengthBytes *int64
}

// Result is the /uploads response body.
type Result struct {
	DocID            string `json:"docId"`
	Key              string `json:"key"`
	UploadURL        string `json:"uploadUrl"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
	ContentType      string `json:"contentType"`
}

func validate(req Request) error {
	if strings.TrimSpace(req.CourseID) == "" {
		return apperr.Validation("'courseId' must be a non-empty string")
	}
	if strings.TrimSpace(req.Filename) == "" {
		return apperr.Validation("'filename' must be a non-empty string")
	}
	if strings.TrimSpace(req.ContentType) == "" {
		return apperr.Validation("'contentType' must be a non-empty string")
	}
	if !courseIDPattern.MatchString(req.CourseID) {
		return apperr.Validation("'courseId' must contain only letters, numbers, '.', '_' or '-'")
	}
	ext, ok := contentTypeExtension[req.ContentType]
	if !ok {
		return apperr.Validation("'contentType' must be one of: pdf, plain, pptx, docx, doc")
	}

	basename := path.Base(req.Filename)
	if basename != req.Filename || basename == "." || basename == ".." || basename == "" {
		return apperr.Validation("'filename' must be a bare file name")
	}
	if strings.Contains(req.Filename, "/") || strings.Contains(req.Filename, "\\") {
		return apperr.Validation("'filename' must be a bare file name")
	}
	if !strings.HasSuffix(strings.ToLower(basename), ext) {
		return apperr.Validationf("'filename' must end with '"+ext+"' for this content type", nil)
	}

	if officeContentTypes[req.ContentType] {
		if req.ContentLengthBytes == nil || *req.ContentLengthBytes <= 0 {
			return apperr.Validation("'contentLengthBytes' must be a positive integer for .pptx/.docx/.doc uploads")
		}
		if *req.ContentLengthBytes > maxOfficeDocBytes {
			return apperr.Validation("'" + ext + "' exceeds 50MB limit")
		}
	}
	return nil
}

// Minter mints presigned upload URLs against an ObjectStore.
type Minter struct {
	Object    ports.ObjectStore
	DocIDFunc func() string
}

func (m *Minter) docID() string {
	if m.DocIDFunc != nil {
		return m.DocIDFunc()
	}
	return "doc-" + uuid.New().String()
}

// Create validates req and mints a presigned PUT URL (spec §4.M).
func (m *Minter) Create(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	docID := m.docID()
	key := models.CanonicalUploadObjectKey(req.CourseID, docID, req.Filename)
	mime := contentTypeMIME[req.ContentType]

	uploadURL, err := m.Object.PresignPut(ctx, key, mime, uploadURLExpiry)
	if err != nil {
		return Result{}, apperr.Misconfigured("failed to mint presigned upload URL: " + err.Error())
	}

	return Result{
		DocID:            docID,
		Key:              key,
		UploadURL:        uploadURL,
		ExpiresInSeconds: int(uploadURLExpiry.Seconds()),
		ContentType:      req.ContentType,
	}, nil
}
