// Package ratelimit throttles the write endpoints per client
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	// Allow consumes one request for key
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases resources held by the limiter
	Close() error
}

// Decision is the outcome of Allow
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt is when a full allowance is available again
	ResetAt time.Time
}

// RetryAfter returns how long a rejected client should wait
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Config bounds the number of requests per client within a window
type Config struct {
	Limit  int
	Window time.Duration
	// Prefix namespaces the Redis keys
	Prefix string
}

func (c Config) validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("limit must be greater than 0, got %d", c.Limit)
	}
	if c.Window <= 0 {
		return fmt.Errorf("window must be greater than 0, got %s", c.Window)
	}
	return nil
}
