// Package storage defines the interface for archiving raw page snapshots.
// This abstraction keeps the ingest pipeline independent of a specific blob
// backend (Google Cloud Storage, the local filesystem, or memory).
package storage

import (
	"context"
	"io"
)

// BlobStore persists one fetched page snapshot and returns the URI it is
// reachable at.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Discard is a BlobStore that drops all writes, for dry runs where pages are
// fetched and embedded but never archived.
type Discard struct{}

// PutObject implements BlobStore.
func (Discard) PutObject(_ context.Context, path string, _ string, _ io.Reader) (string, error) {
	return "discard://" + path, nil
}
