package objectstore

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Local is a ports.ObjectStore backed by a directory on disk, used for
// local development and tests in place of the GCS adapter. PresignPut
// returns a plain file:// URL annotated with the key and expiry rather than
// a real signed upload -- there is no upload-time auth to enforce on a local
// directory.
type Local struct {
	Dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create local dir %s: %w", dir, err)
	}
	return &Local{Dir: dir}, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.Dir, filepath.FromSlash(key))
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, string, error) {
	data, err := os.ReadFile(l.path(key))
	if err != nil {
		return nil, "", fmt.Errorf("objectstore: read %s: %w", key, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(key))
	return data, contentType, nil
}

func (l *Local) Put(ctx context.Context, key string, data []byte, contentType string) error {
	path := l.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("objectstore: create dir for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("objectstore: write %s: %w", key, err)
	}
	return nil
}

func (l *Local) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	if err := os.MkdirAll(filepath.Dir(l.path(key)), 0o755); err != nil {
		return "", fmt.Errorf("objectstore: create dir for %s: %w", key, err)
	}
	u := url.URL{
		Scheme: "file",
		Path:   l.path(key),
	}
	q := u.Query()
	q.Set("contentType", contentType)
	q.Set("expiresAt", time.Now().Add(expiry).UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
