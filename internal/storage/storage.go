// Package storage stores generated documents on the local filesystem or in S3.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aimd54/sistema-donaciones/internal/config"
)

// Storage abstracts where generated documents live.
type Storage interface {
	// Save stores data under key and returns the public URL.
	Save(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)

	// Open returns the content stored under key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error
}

// New builds the configured Storage.
func New(ctx context.Context, cfg *config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	case "local", "":
		return NewLocalStorage(cfg.BasePath, cfg.URLPrefix), nil
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.Driver)
	}
}
