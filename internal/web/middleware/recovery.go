package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// recoveryBody matches the shape of the API's error responses
const recoveryBody = `{"error":"internal_server_error","message":"An unexpected error occurred"}`

// Recovery turns a panic into a 500 response and logs it with a stack trace
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				err, ok := p.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", p)
				}
				Logger(r.Context()).Error("panic recovered",
					zap.Error(err),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(recoveryBody))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
