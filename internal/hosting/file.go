package hosting

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileHost writes pages to a local directory served at BaseURL.
// Useful for previewing pages and for a sandbox run behind a local web server.
type FileHost struct {
	dir     string
	baseURL string
}

// NewFileHost creates the directory if needed.
func NewFileHost(dir, baseURL string) (*FileHost, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required for file hosting")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create hosting directory: %w", err)
	}

	if baseURL == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve hosting directory: %w", err)
		}
		baseURL = (&url.URL{Scheme: "file", Path: abs}).String()
	}

	return &FileHost{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Upload writes content to dir/name. Existing files are left untouched.
func (h *FileHost) Upload(_ context.Context, name string, content []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid upload name %q", name)
	}

	path := filepath.Join(h.dir, name)
	if _, err := os.Stat(path); err == nil {
		return h.url(name), nil
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return h.url(name), nil
}

func (h *FileHost) url(name string) string {
	return h.baseURL + "/" + url.PathEscape(name)
}
