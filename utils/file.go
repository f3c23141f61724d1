package utils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects on disk when R2 is not configured. Files are served from
// BaseURL, which main mounts as a static route.
type LocalStore struct {
	Dir     string
	BaseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	if dir == "" {
		dir = "uploads"
	}
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &LocalStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

// EnsureDir creates the upload directory if it doesn't exist
func (s *LocalStore) EnsureDir() error {
	return os.MkdirAll(s.Dir, os.ModePerm)
}

// Path returns the full path for a key inside the upload directory
func (s *LocalStore) Path(key string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(key))
}

func (s *LocalStore) PutObject(_ context.Context, key, _ string, body []byte) (string, error) {
	dest := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return "", err
	}
	return s.BaseURL + "/" + key, nil
}
