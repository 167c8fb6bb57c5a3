// Package gcs implements a Google Cloud Storage blob store.
package gcs

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// BlobStore uploads snapshots to a GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	log    *zap.Logger
}

// New initializes a GCS client and verifies the bucket is reachable.
// Authentication is handled via Google's Application Default Credentials.
func New(ctx context.Context, bucketName string, log *zap.Logger) (*BlobStore, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	// Fail fast on startup if the bucket is missing or unreadable.
	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn("failed to close GCS client after bucket check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket %q attributes: %w", bucketName, err)
	}

	return &BlobStore{client: client, bucket: bucketName, log: log}, nil
}

// PutObject uploads data to the bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		wc.ContentType = contentType
	}

	if _, err := io.Copy(wc, data); err != nil {
		if closeErr := wc.Close(); closeErr != nil {
			s.log.Warn("failed to close GCS writer after write failure",
				zap.String("object", path),
				zap.Error(closeErr),
			)
		}
		return "", fmt.Errorf("failed to write GCS object %s: %w", path, err)
	}
	// Close finalizes the upload and flushes buffered data.
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for object %s: %w", path, err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// Close releases the underlying client.
func (s *BlobStore) Close() error {
	return s.client.Close()
}
