// Package request decodes JSON and form-encoded request bodies
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/VForWaTer/metacatalog-api/internal/web/response"
)

// Parser handles parsing of HTTP request bodies
type Parser struct {
	maxBodySize int64
}

// NewParser creates a new request parser with default settings
func NewParser() *Parser {
	return &Parser{maxBodySize: 10 << 20} // 10MB
}

// NewParserWithMaxSize creates a parser with a custom max body size
func NewParserWithMaxSize(maxBytes int64) *Parser {
	return &Parser{maxBodySize: maxBytes}
}

// ParseJSON decodes a single JSON object into target. Unknown fields are rejected.
func (p *Parser) ParseJSON(w http.ResponseWriter, r *http.Request, target interface{}) error {
	if err := requireMediaType(r, "application/json", true); err != nil {
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return response.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		case err == io.EOF:
			return response.NewHTTPError(http.StatusBadRequest, "request body is empty")
		default:
			return response.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		}
	}

	if decoder.More() {
		return response.NewHTTPError(http.StatusBadRequest, "request body contains multiple JSON objects")
	}
	return nil
}

// ParseForm returns a url-encoded form body as a flat key/value map. Only the first
// value of a repeated key is kept.
func (p *Parser) ParseForm(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	if err := requireMediaType(r, "application/x-www-form-urlencoded", false); err != nil {
		return nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, response.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return nil, response.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
	}

	result := make(map[string]string, len(r.PostForm))
	for key, vals := range r.PostForm {
		if len(vals) > 0 {
			result[key] = vals[0]
		}
	}
	return result, nil
}

// requireMediaType checks the Content-Type header. An absent header is accepted when allowEmpty is set.
func requireMediaType(r *http.Request, want string, allowEmpty bool) error {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" && allowEmpty {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != want {
		return response.NewHTTPError(http.StatusUnsupportedMediaType,
			fmt.Sprintf("unsupported content type %q, expected %s", contentType, want))
	}
	return nil
}
