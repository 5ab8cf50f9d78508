// Package cache provides pluggable caching for feed metadata.
//
// Repository clients cache dependency-info and version-list responses so
// that repeated discovery runs avoid network round-trips. Three backends
// are provided:
//   - FileCache: JSON files with TTL, for single-machine kernel use
//   - RedisCache: shared cache for multiple kernels behind one host
//   - NullCache: disables caching, for tests and --no-cache runs
//
// The cache stores opaque byte slices; callers handle serialization.
// A cache miss is never an error: backends report (nil, false, nil).
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys with optional expiry.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value. A ttl of 0 means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}
