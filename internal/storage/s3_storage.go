package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Storage stores documents in an S3-compatible bucket.
type S3Storage struct {
	raw    *minio.Client
	bucket string
}

func NewS3Storage(ctx context.Context, cfg Config) (*S3Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &S3Storage{raw: client, bucket: cfg.Bucket}, nil
}

func (s *S3Storage) PutObject(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.raw.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q failed: %w", key, err)
	}
	return nil
}

func (s *S3Storage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	u, err := s.raw.PresignedGetObject(ctx, s.bucket, key, expiresIn, nil)
	if err != nil {
		return "", fmt.Errorf("presign get object %q failed: %w", key, err)
	}
	return u.String(), nil
}

func (s *S3Storage) FileExists(ctx context.Context, key string) (bool, int64, error) {
	info, err := s.raw.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, info.Size, nil
}

func (s *S3Storage) DeleteFile(ctx context.Context, key string) error {
	return s.raw.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *S3Storage) ReadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.raw.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q failed: %w", key, err)
	}
	return obj, nil
}
