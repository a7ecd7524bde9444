package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dwiju-assistant/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return p
}

func TestOpenAIComplete(t *testing.T) {
	var got map[string]any
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4-turbo-preview",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi there"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
		}`))
	})

	out, err := p.Complete(context.Background(), Request{
		Model: "gpt-4-turbo-preview",
		Messages: []models.PromptMessage{
			{Role: models.RoleSystem, Content: "be nice"},
			{Role: models.RoleUserMessage, Content: "Hello"},
		},
		MaxTokens:   4000,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out.Text)
	assert.Equal(t, 12, out.Tokens)
	assert.Equal(t, "gpt-4-turbo-preview", out.Model)

	assert.Equal(t, "gpt-4-turbo-preview", got["model"])
	assert.EqualValues(t, 4000, got["max_tokens"])
	assert.InDelta(t, 0.7, got["temperature"], 0.001)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAICompleteMissingFields(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "choices": []}`))
	})

	out, err := p.Complete(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "", out.Text)
	assert.Equal(t, 0, out.Tokens)
	assert.Equal(t, "m", out.Model)
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"unauthorized", http.StatusUnauthorized, KindAuth},
		{"rate limited", http.StatusTooManyRequests, KindRateLimited},
		{"server error", http.StatusInternalServerError, KindUnavailable},
		{"bad gateway", http.StatusBadGateway, KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "nope", "type": "test_error"}}`))
			})

			_, err := p.Complete(context.Background(), Request{Model: "m"})
			require.Error(t, err)
			pe, ok := AsError(err)
			require.True(t, ok, "expected provider error, got %v", err)
			assert.Equal(t, tt.want, pe.Kind)
			if tt.want == KindRateLimited {
				assert.Equal(t, DefaultRetryAfter, pe.RetryAfter)
			}
		})
	}
}

func TestOpenAITimeout(t *testing.T) {
	release := make(chan struct{})
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, Request{Model: "m"})
	pe, ok := AsError(err)
	require.True(t, ok, "expected provider error, got %v", err)
	assert.Equal(t, KindTimeout, pe.Kind)
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}

func TestUnconfiguredFailsWithAuth(t *testing.T) {
	_, err := Unconfigured{Name: "openai"}.Complete(context.Background(), Request{})
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindAuth, pe.Kind)
}
