// Package gcs archives raw payloads in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// BlobStore writes raw payloads into a GCS bucket. Authentication uses
// Application Default Credentials.
type BlobStore struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewBlobStore initializes a GCS client and verifies the bucket is
// reachable, failing fast on startup misconfiguration.
func NewBlobStore(ctx context.Context, bucket string, logger *zap.Logger) (*BlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("gcs client close failed", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucket, err)
	}
	return &BlobStore{client: client, bucket: bucket, logger: logger}, nil
}

// PutObject uploads the payload and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			s.logger.Warn("gcs writer close failed after write error", zap.Error(closeErr))
		}
		return "", fmt.Errorf("write gcs object %s: %w", path, err)
	}
	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer for object %s: %w", path, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// Close releases the underlying client.
func (s *BlobStore) Close() error {
	return s.client.Close()
}
