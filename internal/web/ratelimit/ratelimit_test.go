package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T, cfg Config) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l, err := NewRedis(client, cfg)
	require.NoError(t, err)
	return l, mr
}

func TestConfigValidation(t *testing.T) {
	_, err := NewMemory(Config{Limit: 0, Window: time.Minute})
	assert.Error(t, err)
	_, err = NewMemory(Config{Limit: 5})
	assert.Error(t, err)
	_, err = NewRedis(nil, Config{Limit: 5, Window: time.Minute})
	assert.Error(t, err)
}

func TestMemoryLimiter_RefillsOverTime(t *testing.T) {
	l, err := NewMemory(Config{Limit: 2, Window: time.Minute})
	require.NoError(t, err)
	defer l.Close()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	d, _ := l.Allow(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	d, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = l.Allow(ctx, "10.0.0.1")
	assert.False(t, d.Allowed)
	assert.InDelta(t, 60, d.RetryAfter(now).Seconds(), 0.001)

	// other clients have their own bucket
	d, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, d.Allowed)

	// one token every 30s
	now = now.Add(31 * time.Second)
	d, _ = l.Allow(ctx, "10.0.0.1")
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_DropIdle(t *testing.T) {
	l, err := NewMemory(Config{Limit: 1, Window: time.Minute})
	require.NoError(t, err)
	defer l.Close()

	now := time.Now()
	l.now = func() time.Time { return now }
	_, _ = l.Allow(context.Background(), "a")

	now = now.Add(2 * time.Minute)
	l.dropIdle()
	assert.Empty(t, l.buckets)
	assert.NoError(t, l.Close())
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	l, mr := newRedisLimiter(t, Config{Limit: 2, Window: time.Minute, Prefix: "metacatalog:writes:"})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.True(t, mr.Exists("metacatalog:writes:10.0.0.1"))

	mr.FastForward(time.Minute)
	d, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	l, mr := newRedisLimiter(t, Config{Limit: 1, Window: time.Minute})
	mr.Close()

	_, err := l.Allow(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	l, err := NewMemory(Config{Limit: 1, Window: time.Minute})
	require.NoError(t, err)
	defer l.Close()

	h := Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/entries", nil)
		req.RemoteAddr = "192.0.2.7:51234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post()
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = post()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestMiddleware_FailsOpen(t *testing.T) {
	l, mr := newRedisLimiter(t, Config{Limit: 1, Window: time.Minute})
	mr.Close()

	h := Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/authors", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/entries", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	assert.Equal(t, "192.0.2.7", ClientKey(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientKey(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ClientKey(req))
}
