// Package storage writes generated images to a local output directory. Files
// are write-only from the service's point of view; nothing reads them back.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"imageloop/internal/infra"
	"imageloop/internal/media"
	"imageloop/internal/scheduler"
)

// FileStore persists generated images under a base directory, one file per
// delivery, grouped by day.
type FileStore struct {
	basePath string
	logger   *infra.Logger
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string, logger *infra.Logger) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &FileStore{basePath: basePath, logger: logger}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Deliver implements scheduler.Sink.
func (s *FileStore) Deliver(ctx context.Context, d scheduler.Delivery) error {
	if d.Result == nil || len(d.Result.Data) == 0 {
		return errors.New("storage: empty delivery")
	}
	key := KeyFor(d)
	stored, err := s.Write(ctx, key, d.Result.Data)
	if err != nil {
		return err
	}
	s.logger.Debug().
		Str("request_id", d.ID).
		Str("key", stored).
		Int("bytes", len(d.Result.Data)).
		Msg("storage: image written")
	return nil
}

// KeyFor derives the relative storage key of a delivery.
func KeyFor(d scheduler.Delivery) string {
	ts := d.CreatedAt.UTC()
	ext := media.Extension(d.Result.MIMEType, d.Result.Data)
	name := fmt.Sprintf("%s-%s-%s%s", ts.Format("150405"), d.Result.ProviderUsed, d.ID, ext)
	return ts.Format("2006/01/02") + "/" + name
}

// Write persists data at the relative key through a temp file and rename,
// and returns the canonical key. Keys cannot escape the base directory.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: chmod file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("storage: rename file: %w", err)
	}
	return cleanKey, nil
}

func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(strings.TrimPrefix(key, "./"), "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

var _ scheduler.Sink = (*FileStore)(nil)
