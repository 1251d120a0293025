package collab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dispatchcore/internal/dispatch"
)

// LocalObjectStorage is the dependency-free ObjectStorage fallback for
// local development: documents are written under a base directory and
// served back via a configured public base URL.
type LocalObjectStorage struct {
	baseDir  string
	publicURL string
}

func NewLocalObjectStorage(baseDir, publicURL string) *LocalObjectStorage {
	return &LocalObjectStorage{baseDir: baseDir, publicURL: publicURL}
}

func (s *LocalObjectStorage) PutDocument(ctx context.Context, driverID string, kind dispatch.DocumentKind, data []byte) (string, error) {
	dir := filepath.Join(s.baseDir, driverID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object storage: %w", err)
	}
	name := fmt.Sprintf("%s-%d", kind, time.Now().UnixNano())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("object storage: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", s.publicURL, driverID, name), nil
}
