package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

// MemoryLimiter is a per-process token bucket. Each client starts with Limit tokens which
// refill continuously at Limit per Window.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   float64
	rate    float64 // tokens per second
	window  time.Duration
	now     func() time.Time

	stop chan struct{}
	once sync.Once
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewMemory creates a token bucket limiter. Idle buckets are dropped every window.
func NewMemory(cfg Config) (*MemoryLimiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		limit:   float64(cfg.Limit),
		rate:    float64(cfg.Limit) / cfg.Window.Seconds(),
		window:  cfg.Window,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go m.sweep()
	return m, nil
}

// Allow consumes one token for key
func (m *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.limit, seen: now}
		m.buckets[key] = b
	}

	elapsed := now.Sub(b.seen).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(m.limit, b.tokens+elapsed*m.rate)
	}
	b.seen = now

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}

	missing := m.limit - b.tokens
	return Decision{
		Allowed:   allowed,
		Limit:     int(m.limit),
		Remaining: int(math.Floor(b.tokens)),
		ResetAt:   now.Add(time.Duration(missing / m.rate * float64(time.Second))),
	}, nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(m.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.dropIdle()
		case <-m.stop:
			return
		}
	}
}

// dropIdle forgets buckets that have refilled completely
func (m *MemoryLimiter) dropIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, b := range m.buckets {
		if now.Sub(b.seen) >= m.window {
			delete(m.buckets, key)
		}
	}
}

// Close stops the sweeper
func (m *MemoryLimiter) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}
