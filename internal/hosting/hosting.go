// Package hosting uploads rendered task pages to a publicly reachable location.
package hosting

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// Host stores content under a name and returns a URL workers can load.
// Uploading the same name twice must be safe.
type Host interface {
	Upload(ctx context.Context, name string, content []byte) (string, error)
}

// Backend names a hosting implementation.
type Backend string

const (
	BackendS3   Backend = "s3"
	BackendGCS  Backend = "gcs"
	BackendFile Backend = "file"
)

// Config selects and configures a hosting backend.
type Config struct {
	Backend  Backend
	Bucket   string
	Region   string
	Endpoint string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix   string // Optional object name prefix
	Dir      string // Directory for the file backend
	BaseURL  string // Public URL prefix for the file backend
}

// New creates a Host for the configured backend.
func New(ctx context.Context, cfg Config) (Host, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Host(ctx, cfg)
	case BackendGCS:
		return newGCSHost(ctx, cfg)
	case BackendFile:
		return NewFileHost(cfg.Dir, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported hosting backend: %q", cfg.Backend)
	}
}

// UploadFiles pushes static files (stylesheets, scripts) that task pages
// reference, keyed by base name. Returns the URL for each path.
func UploadFiles(ctx context.Context, host Host, paths []string) (map[string]string, error) {
	urls := make(map[string]string, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read extra file %s: %w", path, err)
		}
		url, err := host.Upload(ctx, filepath.Base(path), content)
		if err != nil {
			return nil, fmt.Errorf("failed to upload extra file %s: %w", path, err)
		}
		urls[path] = url
	}
	return urls, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
