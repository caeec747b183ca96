package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/VForWaTer/metacatalog-api/internal/web/response"
	"go.uber.org/zap"
)

// Middleware rejects clients over their allowance with 429. Limiter failures let the
// request through.
func Middleware(l Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			d, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("client", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				wait := d.RetryAfter(time.Now())
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				response.RenderError(w, logger, response.NewHTTPError(http.StatusTooManyRequests,
					"too many write requests, retry in "+wait.Round(time.Second).String()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the client by the first X-Forwarded-For hop, X-Real-IP or the
// remote address
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
