package uploads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	presignedURL string
}

func (f *fakeObjectStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	return nil, "", nil
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}

func (f *fakeObjectStore) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	return f.presignedURL + key, nil
}

func TestCreate_MintsPresignedURLForPDF(t *testing.T) {
	m := &Minter{Object: &fakeObjectStore{presignedURL: "https://example/"}, DocIDFunc: func() string { return "doc-fixed" }}

	result, err := m.Create(context.Background(), Request{
		CourseID:    "course1",
		Filename:    "notes.pdf",
		ContentType: "pdf",
	})
	require.NoError(t, err)
	require.Equal(t, "doc-fixed", result.DocID)
	require.Equal(t, "uploads/course1/doc-fixed/notes.pdf", result.Key)
	require.Equal(t, "https://example/uploads/course1/doc-fixed/notes.pdf", result.UploadURL)
	require.Equal(t, 900, result.ExpiresInSeconds)
}

func TestCreate_RejectsPathSeparatorInFilename(t *testing.T) {
	m := &Minter{Object: &fakeObjectStore{}}
	_, err := m.Create(context.Background(), Request{CourseID: "c1", Filename: "../etc/passwd.pdf", ContentType: "pdf"})
	require.Error(t, err)
}

func TestCreate_RejectsMismatchedExtension(t *testing.T) {
	m := &Minter{Object: &fakeObjectStore{}}
	_, err := m.Create(context.Background(), Request{CourseID: "c1", Filename: "notes.txt", ContentType: "pdf"})
	require.Error(t, err)
}

func TestCreate_RequiresContentLengthForOfficeDocs(t *testing.T) {
	m := &Minter{Object: &fakeObjectStore{}}
	_, err := m.Create(context.Background(), Request{CourseID: "c1", Filename: "slides.pptx", ContentType: "pptx"})
	require.Error(t, err)
}

func TestCreate_RejectsOversizedOfficeDoc(t *testing.T) {
	m := &Minter{Object: &fakeObjectStore{}}
	tooBig := int64(51 * 1024 * 1024)
	_, err := m.Create(context.Background(), Request{
		CourseID: "c1", Filename: "slides.pptx", ContentType: "pptx", ContentLengthBytes: &tooBig,
	})
	require.Error(t, err)
}

func TestCreate_RejectsInvalidCourseID(t *testing.T) {
	m := &Minter{Object: &fakeObjectStore{}}
	_, err := m.Create(context.Background(), Request{CourseID: "course/1", Filename: "notes.pdf", ContentType: "pdf"})
	require.Error(t, err)
}
