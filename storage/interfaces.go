package storage

import "context"

// VectorRepository stores raw embedding vectors keyed by embedding hash.
// Vectors never travel through the NDJSON artifacts; stages that need them
// (positioning, similarity, loading) fetch them here by hash.
// Implementations must be thread-safe and support concurrent access.
type VectorRepository interface {
	// Put stores a vector under its embedding hash. Overwriting an existing
	// hash with identical content is a no-op by construction (the hash covers
	// the owner and model, and vectors are deterministic per owner+model).
	Put(ctx context.Context, hash string, vector []float32) error

	// Get retrieves a vector by embedding hash.
	// Returns ErrNotFound if no vector is stored under the hash.
	Get(ctx context.Context, hash string) ([]float32, error)

	// Has reports whether a vector is stored under the hash.
	Has(ctx context.Context, hash string) (bool, error)

	// Close closes the storage backend and releases resources.
	Close() error
}
