package storage

import (
	"context"
	"fmt"
)

// Config holds storage configuration
type Config struct {
	Type      string // "mock" or "s3"
	MockDir   string // Directory for mock storage
	BaseURL   string // Server base URL for generating mock URLs
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// New builds the backend selected by cfg.Type.
func New(ctx context.Context, cfg Config) (StorageInterface, error) {
	switch cfg.Type {
	case "", "mock":
		return NewMockStorageService(cfg.BaseURL, cfg.MockDir)
	case "s3":
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
