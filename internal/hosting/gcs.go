//go:build gcp

package hosting

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"cloud.google.com/go/storage"
)

// GCSHost serves task pages from a public Google Cloud Storage bucket.
type GCSHost struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSHost creates a GCS-backed host (uses ADC by default).
func NewGCSHost(ctx context.Context, cfg Config) (*GCSHost, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required for gcs hosting")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSHost{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Upload stores content with a public-read ACL and returns its URL.
func (h *GCSHost) Upload(ctx context.Context, name string, content []byte) (string, error) {
	objectPath := h.prefix + name
	obj := h.client.Bucket(h.bucket).Object(objectPath)

	_, err := obj.Attrs(ctx)
	if err == nil {
		return h.url(objectPath), nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("gcs attrs failed for %s: %w", objectPath, err)
	}

	w := obj.NewWriter(ctx)
	w.ContentType = contentType(name)
	w.PredefinedACL = "publicRead"

	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}

	return h.url(objectPath), nil
}

func (h *GCSHost) url(objectPath string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", h.bucket, (&url.URL{Path: objectPath}).EscapedPath())
}
