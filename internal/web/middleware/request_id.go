package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey ContextKey = "request_id"
	// LoggerKey is the context key for the request-scoped logger
	LoggerKey ContextKey = "logger"
)

// RequestIDHeader is read from and echoed to clients
const RequestIDHeader = "X-Request-ID"

// RequestID reuses the client's X-Request-ID or generates a UUID, and stores a logger
// carrying the id in the request context
func RequestID(logger *zap.Logger) Middleware {
	return requestIDWithGenerator(logger, func() string { return uuid.New().String() })
}

func requestIDWithGenerator(logger *zap.Logger, generate func() string) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = generate()
			}

			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
			ctx = context.WithValue(ctx, LoggerKey, logger.With(zap.String("request_id", requestID)))

			w.Header().Set(RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// Logger returns the request-scoped logger, or a no-op logger outside a request
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}
