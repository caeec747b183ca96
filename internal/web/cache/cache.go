// Package cache provides the search-result and response caches backed by memory or Redis
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values under the cache prefix
	Clear(ctx context.Context) error

	// Close releases resources held by the backend
	Close() error
}

// Backend names accepted by New
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds common configuration for cache backends
type Config struct {
	// Backend selects the implementation: none, memory or redis
	Backend string
	// DefaultTTL is the default time-to-live for cached items
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
	// Redis is used when Backend is redis
	Redis RedisConfig
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		Backend:    BackendMemory,
		DefaultTTL: 5 * time.Minute,
		Prefix:     "metacatalog:",
		Redis:      DefaultRedisConfig(),
	}
}

// New creates the configured backend. BackendNone returns a nil Cache.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryCache(cfg), nil
	case BackendRedis:
		rc, err := NewRedisCache(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
var ErrCacheMiss = errors.New("cache miss")

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
