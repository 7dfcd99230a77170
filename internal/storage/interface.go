package storage

import (
	"context"
	"io"
	"time"
)

// StorageInterface defines the interface for document storage backends.
// Supports both mock (local filesystem) and S3-compatible object storage.
type StorageInterface interface {
	// PutObject stores data under key
	PutObject(ctx context.Context, key, contentType string, data []byte) error

	// GeneratePresignedDownloadURL generates a time-limited URL for downloading
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error)

	// FileExists checks if a file exists and returns its size
	FileExists(ctx context.Context, key string) (exists bool, size int64, err error)

	// DeleteFile removes a file from storage
	DeleteFile(ctx context.Context, key string) error

	// ReadFile opens a stored file for reading
	ReadFile(ctx context.Context, key string) (io.ReadCloser, error)
}
