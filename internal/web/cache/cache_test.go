package cache

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

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cache := NewRedisCacheWithClient(client, DefaultConfig())
	t.Cleanup(func() { cache.Close() })
	return cache, mr
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, Config{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(ctx, Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = New(ctx, Config{Backend: "memcached"})
	assert.Error(t, err)
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Backend = BackendRedis
	cfg.Redis.Addr = mr.Addr()

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()
	assert.IsType(t, &RedisCache{}, c)
}

func TestNewRedisCache_ConnectionError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := NewRedisCache(context.Background(), cfg)
	assert.Error(t, err)
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "default", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "forever", []byte("3"), -1))

	now = now.Add(2 * time.Second)
	_, err := c.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))

	_, err = c.Get(ctx, "default")
	assert.NoError(t, err)

	now = now.Add(24 * time.Hour)
	_, err = c.Get(ctx, "default")
	assert.True(t, IsCacheMiss(err))

	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryCache_ClearKeepsOtherPrefixes(t *testing.T) {
	c := NewMemoryCache(Config{Prefix: "a:"})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "x", []byte("1"), time.Minute))
	c.items["b:y"] = memoryItem{value: []byte("2")}

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_CancelledContext(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), context.Canceled)
}

func TestRedisCache_SetAndGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "search:abc", []byte(`[1,2]`), time.Minute))
	assert.True(t, mr.Exists("metacatalog:search:abc"))

	got, err := cache.Get(ctx, "search:abc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[1,2]`), got)

	mr.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, "search:abc")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisCache_DefaultTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), "k", []byte("v"), 0))
	assert.Equal(t, 5*time.Minute, mr.TTL("metacatalog:k"))
}

func TestRedisCache_Clear(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Set(ctx, k, []byte(k), time.Minute))
	}
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, cache.Clear(ctx))
	assert.False(t, mr.Exists("metacatalog:a"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisCache_Delete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, cache.Delete(ctx, "k"))
	assert.False(t, mr.Exists("metacatalog:k"))
}

func TestSearchKey(t *testing.T) {
	ten, zero := 10, 0

	assert.Equal(t, SearchKey("Soil", nil, nil), SearchKey("  soil ", nil, nil))
	assert.NotEqual(t, SearchKey("soil", &ten, nil), SearchKey("soil", nil, nil))
	assert.NotEqual(t, SearchKey("soil", &ten, &zero), SearchKey("soil", &zero, &ten))
	assert.Contains(t, SearchKey("soil", nil, nil), "search:")
}

func TestRequestKey_SortsQuery(t *testing.T) {
	a := httptest.NewRequest(http.MethodGet, "/licenses?limit=5&offset=1", nil)
	b := httptest.NewRequest(http.MethodGet, "/licenses?offset=1&limit=5", nil)
	c := httptest.NewRequest(http.MethodGet, "/licenses?offset=2&limit=5", nil)

	assert.Equal(t, RequestKey(a), RequestKey(b))
	assert.NotEqual(t, RequestKey(a), RequestKey(c))
}

func TestMatchesETag(t *testing.T) {
	etag := GenerateETag([]byte("body"))

	assert.True(t, MatchesETag(etag, etag))
	assert.True(t, MatchesETag(`"other", `+etag, etag))
	assert.True(t, MatchesETag("W/"+etag, etag))
	assert.True(t, MatchesETag("*", etag))
	assert.False(t, MatchesETag(`"other"`, etag))
	assert.False(t, MatchesETag("", etag))
}

func TestMiddleware(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	calls := 0
	handler := Middleware(c, time.Minute, "public, max-age=60")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":1}]`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/licenses", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/licenses", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[{"id":1}]`, rec.Body.String())
	assert.Equal(t, 1, calls)

	req := httptest.NewRequest(http.MethodGet, "/licenses", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestMiddleware_SkipsErrorsAndOtherMethods(t *testing.T) {
	c := NewMemoryCache(DefaultConfig())
	handler := Middleware(c, time.Minute, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/licenses/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Header().Get("ETag"))
	assert.Equal(t, 0, c.Len())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/licenses", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMiddleware_NilCacheStillSetsETag(t *testing.T) {
	handler := Middleware(nil, 0, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/datatypes", nil))
	assert.Equal(t, GenerateETag([]byte("x")), rec.Header().Get("ETag"))
	assert.Empty(t, rec.Header().Get("X-Cache"))
}
