// Package response renders JSON bodies and maps catalog errors to HTTP status codes
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"go.uber.org/zap"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are already sent
		return
	}
}

// StatusFor maps an error from the catalog taxonomy to an HTTP status
func StatusFor(err error) int {
	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.StatusCode
	case catalog.IsNotFound(err):
		return http.StatusNotFound
	case catalog.IsValidation(err):
		return http.StatusBadRequest
	case catalog.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RenderError renders err with the status from StatusFor. Store and unknown errors are
// logged and answered with a generic message.
func RenderError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Error:   errorCodeFromStatus(status),
		Message: err.Error(),
		Code:    errorCodeFromStatus(status),
	}

	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "validation_failed"
		resp.Message = "The request contains invalid data"
		resp.Fields = make(map[string][]string, len(verr.Errors))
		for _, fe := range verr.Errors {
			resp.Fields[fe.Field] = append(resp.Fields[fe.Field], fe.Message)
		}
	}

	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("request failed", zap.Error(err))
		}
		resp.Message = "Internal server error"
	}

	JSON(w, status, resp)
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}

// HTTPError is a transport-level error with a fixed status, e.g. a malformed body
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message}
}
