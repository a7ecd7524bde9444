package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, showDiagnostics bool, handler gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(showDiagnostics), RecoveryWithLogger(showDiagnostics))
	r.GET("/x", handler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestErrorHandlerRendersAppError(t *testing.T) {
	w, body := run(t, false, func(c *gin.Context) {
		_ = c.Error(BadRequestWithDetails(CodeValidation, "Message is required", gin.H{"field": "message"}))
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Message is required", body["error"])
	assert.Equal(t, CodeValidation, body["code"])
	assert.Equal(t, map[string]any{"field": "message"}, body["details"])
	assert.NotContains(t, body, "stack")
}

func TestErrorHandlerHidesPlainErrors(t *testing.T) {
	w, body := run(t, false, func(c *gin.Context) {
		_ = c.Error(errors.New("pq: connection refused"))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternal, body["code"])
	assert.Equal(t, "An unexpected error occurred", body["error"])
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestErrorHandlerDiagnostics(t *testing.T) {
	_, body := run(t, true, func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("wrapped: %w", errors.New("disk full")))
	})

	assert.Equal(t, "wrapped: disk full", body["originalError"])
	assert.NotEmpty(t, body["stack"])
}

func TestErrorHandlerRetryAfter(t *testing.T) {
	w, body := run(t, false, func(c *gin.Context) {
		_ = c.Error(NewTooManyRequestsError(CodeAIRateLimit, "AI service rate limit exceeded", 1500*time.Millisecond))
	})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, CodeAIRateLimit, body["code"])
}

func TestRecoveryWithLogger(t *testing.T) {
	w, body := run(t, false, func(c *gin.Context) {
		panic("boom")
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeServer, body["code"])
	assert.NotContains(t, body, "details")

	_, body = run(t, true, func(c *gin.Context) {
		panic("boom")
	})
	assert.Equal(t, "panic: boom", body["details"])
}

func TestFromErrorUnwraps(t *testing.T) {
	inner := NewNotFoundError(CodeNotFound, "Chat session not found")
	got := FromError(fmt.Errorf("ledger: %w", inner))
	assert.Same(t, inner, got)
	assert.Equal(t, http.StatusNotFound, GetStatusCode(got))
	assert.Equal(t, "UNKNOWN_ERROR", GetErrorCode(errors.New("x")))
	assert.Nil(t, FromError(nil))
}
