package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"scholar/scholar/config"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("object not found")

// Store keeps paper files by slash-separated key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// New picks the backend named in the config. Local storage writes under
// paperDir, which the application factory has already prepared.
func New(ctx context.Context, cfg config.StorageConfig, paperDir string) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalStore(paperDir), nil
	case "minio":
		return NewMinIOStore(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// NewPaperKey returns a fresh key for a paper file with the given extension.
func NewPaperKey(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "pdf"
	}
	return path.Join("papers", uuid.NewString()+"."+ext)
}

func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}
