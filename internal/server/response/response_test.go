package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/livefeed/pkg/errors"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccessAndFail(t *testing.T) {
	ok := Success(map[string]int{"delivered": 2})
	assert.NotNil(t, ok.Data)
	assert.Nil(t, ok.Error)

	bad := Fail("TEST_ERROR", "Test error message", "Additional details")
	assert.Nil(t, bad.Data)
	require.NotNil(t, bad.Error)
	assert.Equal(t, "TEST_ERROR", bad.Error.Code)
	assert.Equal(t, "Test error message", bad.Error.Message)
	assert.Equal(t, "Additional details", bad.Error.Details)
}

func TestOK(t *testing.T) {
	w := httptest.NewRecorder()
	OK(w, map[string]int{"delivered": 3})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"delivered":3},"error":null}`, w.Body.String())
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "bad", "") }, http.StatusBadRequest, "BAD_REQUEST"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "missing", "") }, http.StatusNotFound, "NOT_FOUND"},
		{"method", func(w http.ResponseWriter) { MethodNotAllowed(w, http.MethodPut) }, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
		{"too large", func(w http.ResponseWriter) { RequestTooLarge(w, 64<<10) }, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE"},
		{"rate limited", func(w http.ResponseWriter) { RateLimited(w, "slow down") }, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"internal", func(w http.ResponseWriter) { InternalError(w, fmt.Errorf("secret")) }, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"bad gateway", func(w http.ResponseWriter) { BadGateway(w, "down") }, http.StatusBadGateway, "BAD_GATEWAY"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "closed") }, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	InternalError(w, fmt.Errorf("database password is hunter2"))
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestRequestTooLargeDetails(t *testing.T) {
	w := httptest.NewRecorder()
	RequestTooLarge(w, 1<<20)
	assert.Equal(t, "Event bodies are limited to 1 MiB", decode(t, w).Error.Details)
}

func TestErrorFromType(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", errors.NewValidationError("type", "", "is required"), http.StatusBadRequest},
		{"decode", errors.NewDecodeError("{", fmt.Errorf("unexpected end")), http.StatusBadRequest},
		{"connect", errors.NewConnectError("http://upstream", 503, nil), http.StatusBadGateway},
		{"closed", fmt.Errorf("register: %w", errors.ErrClosed), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ErrorFromType(w, tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
