package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/VForWaTer/metacatalog-api/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&catalog.NotFoundError{Resource: "entry", ID: 1}, http.StatusNotFound},
		{fmt.Errorf("get: %w", &catalog.NotFoundError{Resource: "entry", ID: 1}), http.StatusNotFound},
		{catalog.NewValidationError("title", "is required"), http.StatusBadRequest},
		{&catalog.ConflictError{Resource: "datasource", Message: "exists"}, http.StatusConflict},
		{&catalog.StoreError{Op: "insert", Err: errors.New("down")}, http.StatusInternalServerError},
		{NewHTTPError(http.StatusUnsupportedMediaType, "nope"), http.StatusUnsupportedMediaType},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestRenderError_Validation(t *testing.T) {
	verr := &catalog.ValidationError{}
	verr.Add("title", "is required")
	verr.Add("details.1.key", "is required")
	verr.Add("details.1.key", "too long")

	rec := httptest.NewRecorder()
	RenderError(rec, nil, verr)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_failed", body.Error)
	assert.Equal(t, []string{"is required"}, body.Fields["title"])
	assert.Len(t, body.Fields["details.1.key"], 2)
}

func TestRenderError_NotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	RenderError(rec, nil, &catalog.NotFoundError{Resource: "license", ID: 77})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"not_found"`)
	assert.Contains(t, rec.Body.String(), "77")
}

func TestRenderError_HidesStoreErrors(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	rec := httptest.NewRecorder()
	RenderError(rec, zap.New(core), &catalog.StoreError{Op: "query entries", Err: errors.New("password authentication failed")})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Equal(t, 1, logs.Len())
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]int{"id": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":3}`, rec.Body.String())
}
