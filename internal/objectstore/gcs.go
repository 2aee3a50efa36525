// Package objectstore provides concrete ports.ObjectStore adapters: a
// Google Cloud Storage-backed store for deployed use and a local filesystem
// store for development/tests, grounded on
// estuary-flow/go/flow/builds.go's fetchResource (the pack's only direct
// cloud.google.com/go/storage call site).
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// GCS is a ports.ObjectStore backed by a single Google Cloud Storage bucket.
type GCS struct {
	Client *storage.Client
	Bucket string

	// GoogleAccessID/PrivateKey back PresignPut's V4 signature when the
	// client isn't already running as a service account with IAM-signing
	// permission (the common case outside GCE/GKE).
	GoogleAccessID string
	PrivateKey     []byte
}

// NewGCS opens a GCS client using application default credentials, mirroring
// estuary-flow's storage.NewClient(ctx) call site.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: open gcs client: %w", err)
	}
	return &GCS{Client: client, Bucket: bucket}, nil
}

func (g *GCS) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj := g.Client.Bucket(g.Bucket).Object(key)
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("objectstore: read gs://%s/%s: %w", g.Bucket, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("objectstore: read gs://%s/%s: %w", g.Bucket, key, err)
	}
	return data, r.Attrs.ContentType, nil
}

func (g *GCS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	obj := g.Client.Bucket(g.Bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("objectstore: write gs://%s/%s: %w", g.Bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("objectstore: write gs://%s/%s: %w", g.Bucket, key, err)
	}
	return nil
}

// PresignPut mints a V4 signed PUT URL, requiring GOOGLE_APPLICATION_CREDENTIALS
// to point at a service account key (V4 signing needs a private key, unlike
// the read path's application-default-credentials reader).
func (g *GCS) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Method:      "PUT",
		Expires:     time.Now().Add(expiry),
		ContentType: contentType,
	}
	if g.GoogleAccessID != "" && len(g.PrivateKey) > 0 {
		opts.GoogleAccessID = g.GoogleAccessID
		opts.PrivateKey = g.PrivateKey
	}
	url, err := g.Client.Bucket(g.Bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("objectstore: sign put url for gs://%s/%s: %w", g.Bucket, key, err)
	}
	return url, nil
}
