package cache

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// cachedResponse represents a cached HTTP response
type cachedResponse struct {
	StatusCode int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	ETag       string      `json:"etag"`
}

// Middleware caches successful GET responses and answers conditional requests.
// A nil cache disables caching but ETags are still computed.
func Middleware(c Cache, ttl time.Duration, cacheControl string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := RequestKey(r)

			if c != nil {
				if data, err := c.Get(ctx, key); err == nil {
					var cached cachedResponse
					if err := json.Unmarshal(data, &cached); err == nil {
						if CheckNotModified(w, r, cached.ETag) {
							return
						}
						for name, values := range cached.Header {
							for _, v := range values {
								w.Header().Add(name, v)
							}
						}
						setCacheHeaders(w.Header(), cached.ETag, cacheControl)
						w.Header().Set("X-Cache", "HIT")
						w.WriteHeader(cached.StatusCode)
						w.Write(cached.Body)
						return
					}
				}
			}

			rec := &responseRecorder{ResponseWriter: w, header: http.Header{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 300 {
				rec.flush()
				return
			}

			etag := GenerateETag(rec.body.Bytes())
			if c != nil {
				cached := cachedResponse{
					StatusCode: rec.statusCode,
					Header:     rec.header.Clone(),
					Body:       rec.body.Bytes(),
					ETag:       etag,
				}
				if data, err := json.Marshal(cached); err == nil {
					c.Set(ctx, key, data, ttl)
				}
				rec.header.Set("X-Cache", "MISS")
			}

			if MatchesETag(r.Header.Get("If-None-Match"), etag) {
				w.Header().Set("ETag", etag)
				w.WriteHeader(http.StatusNotModified)
				return
			}

			setCacheHeaders(rec.header, etag, cacheControl)
			rec.flush()
		})
	}
}

func setCacheHeaders(header http.Header, etag, cacheControl string) {
	header.Set("ETag", etag)
	if cacheControl != "" {
		header.Set("Cache-Control", cacheControl)
	}
}

// responseRecorder buffers a response so it can be cached before being sent
type responseRecorder struct {
	http.ResponseWriter
	header     http.Header
	body       bytes.Buffer
	statusCode int
}

func (rr *responseRecorder) Header() http.Header {
	return rr.header
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	return rr.body.Write(b)
}

// flush copies the buffered response to the underlying writer
func (rr *responseRecorder) flush() {
	dst := rr.ResponseWriter.Header()
	for name, values := range rr.header {
		dst[name] = values
	}
	rr.ResponseWriter.WriteHeader(rr.statusCode)
	rr.ResponseWriter.Write(rr.body.Bytes())
}
