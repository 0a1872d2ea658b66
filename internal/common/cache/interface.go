package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Cache defines the unified interface for cache operations. The abstraction
// keeps business logic independent of the concrete backend (Redis in
// production, miniredis in tests).
type Cache interface {
	// Get retrieves the value for the given key.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL. TTL 0 means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Del deletes one or more keys.
	Del(ctx context.Context, keys ...string) error

	// Incr increments the integer value of a key by 1.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a timeout on a key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// LPush prepends values to a list.
	LPush(ctx context.Context, key string, values ...interface{}) error

	// LRange returns list elements in [start, stop].
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// LTrim trims a list to the given range.
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Ping verifies the cache connection is alive.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}
