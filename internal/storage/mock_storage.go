package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// MockStorageService stores documents on the local filesystem.
// For local development without an object store.
type MockStorageService struct {
	baseURL     string // Server URL (e.g., "http://localhost:8080")
	documentDir string
}

// NewMockStorageService creates a new mock storage service
func NewMockStorageService(baseURL, uploadsDir string) (*MockStorageService, error) {
	documentDir := filepath.Join(uploadsDir, "documents")
	if err := os.MkdirAll(documentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create documents directory: %w", err)
	}

	return &MockStorageService{
		baseURL:     baseURL,
		documentDir: documentDir,
	}, nil
}

func (m *MockStorageService) PutObject(ctx context.Context, key, contentType string, data []byte) error {
	fullPath := m.GetLocalPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// GeneratePresignedDownloadURL generates a mock download URL. expiresIn is
// ignored; the mock URL never expires.
func (m *MockStorageService) GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	return fmt.Sprintf("%s/api/v1/download/%s?key=%s", m.baseURL, encodeKey(key), url.QueryEscape(key)), nil
}

// FileExists checks if file exists in local filesystem
func (m *MockStorageService) FileExists(ctx context.Context, key string) (bool, int64, error) {
	info, err := os.Stat(m.GetLocalPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, info.Size(), nil
}

// DeleteFile deletes file from local filesystem
func (m *MockStorageService) DeleteFile(ctx context.Context, key string) error {
	err := os.Remove(m.GetLocalPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// ReadFile reads file from local filesystem
func (m *MockStorageService) ReadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	file, err := os.Open(m.GetLocalPath(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// GetLocalPath returns the filesystem path for a key
func (m *MockStorageService) GetLocalPath(key string) string {
	return filepath.Join(m.documentDir, filepath.Clean("/"+key))
}

// encodeKey creates a URL-safe hash of the key
func encodeKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}
