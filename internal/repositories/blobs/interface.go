package blobs

import "context"

// Repository stores opaque values by key.
type Repository interface {
	// Put inserts or replaces the value stored under key.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value for key or common.ErrorNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
