// Package middleware holds the HTTP middleware wrapped around the catalog API
package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// Chain represents a composable chain of middleware
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds a middleware to the chain
func (c *Chain) Use(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps handler so that the first middleware added runs first
func (c *Chain) Then(handler http.Handler) http.Handler {
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		handler = c.middlewares[i](handler)
	}
	return handler
}

// Default is the chain used by the API server: request id, access log, panic recovery and CORS.
// Health checks are not access-logged.
func Default(logger *zap.Logger) *Chain {
	return NewChain(
		RequestID(logger),
		Logging("/healthz"),
		Recovery(),
		CORS(PermissiveCORSConfig()),
	)
}
