package server

import (
	"context"
)

// BlobStore defines the interface for blob storage operations
type BlobStore interface {
	// EnsureBucket idempotently verifies the backing bucket exists,
	// creating it if absent.
	EnsureBucket(ctx context.Context) error

	// Put writes/overwrites the blob named key
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves the blob named key, returning ErrNotFound if absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the blob named key; absence is not an error
	Delete(ctx context.Context, key string) error
}
