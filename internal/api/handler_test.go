package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/provider"
	"dwiju-assistant/backend/internal/service"
	"dwiju-assistant/backend/internal/store"
	apperrors "dwiju-assistant/backend/pkg/errors"
	"dwiju-assistant/backend/pkg/jwt"
	"dwiju-assistant/backend/pkg/logger"
	"dwiju-assistant/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply *provider.Completion
	err   error
}

func (f *fakeCompleter) Complete(context.Context, provider.Request) (*provider.Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

type noTokens struct{}

func (noTokens) GenerateToken(userID string, role jwt.Role) (string, error) {
	return "token-" + userID, nil
}

type harness struct {
	engine   *gin.Engine
	stores   *store.Stores
	llm      *fakeCompleter
	accounts *service.AccountService
}

// newHarness mounts every handler behind a fake auth middleware that trusts
// the X-Test-User and X-Test-Role headers.
func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	stores := store.NewMemoryStores()
	llm := &fakeCompleter{reply: &provider.Completion{Text: "Hello there", Tokens: 7, Model: "gpt-4-turbo-preview"}}

	ledger := service.NewLedger(stores.Conversations, stores.Accounts, service.DefaultLedgerConfig(), log)
	chat := service.NewChatService(ledger, llm, time.Second, nil, log)
	accounts := service.NewAccountService(stores.Accounts, noTokens{}, log)
	features := service.NewFeatureService(stores.Features, log)

	auth := func(c *gin.Context) {
		id := c.GetHeader("X-Test-User")
		if id == "" {
			_ = c.Error(apperrors.NewUnauthorizedError(apperrors.CodeNoToken, "Access token required"))
			c.Abort()
			return
		}
		role := jwt.Role(c.GetHeader("X-Test-Role"))
		if role == "" {
			role = jwt.RoleUser
		}
		middleware.SetClaims(c, &jwt.JWTClaims{UserID: id, Role: role})
		c.Next()
	}

	r := gin.New()
	r.Use(apperrors.ErrorHandler(false))
	api := r.Group("/api")
	NewFeatureHandler(features, log).RegisterRoutes(api, auth)
	protected := api.Group("")
	protected.Use(auth)
	NewChatHandler(chat, log).RegisterRoutes(protected)
	protected.GET("/auth/me", NewAuthHandler(accounts, log).Me)
	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	NewAdminHandler(accounts, ledger, 30, log).RegisterRoutes(admin)

	return &harness{engine: r, stores: stores, llm: llm, accounts: accounts}
}

func (h *harness) seed(t *testing.T, username string) string {
	t.Helper()
	res, err := h.accounts.Register(context.Background(), models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return res.Account.ID
}

func (h *harness) do(method, path, user string, role jwt.Role, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	if role != "" {
		req.Header.Set("X-Test-Role", string(role))
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func body(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestChatHandlerProviderErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"rate limited", &provider.Error{Kind: provider.KindRateLimited, Status: 429, RetryAfter: 20 * time.Second, Err: errors.New("429")}, http.StatusTooManyRequests, apperrors.CodeAIRateLimit, "20"},
		{"auth", &provider.Error{Kind: provider.KindAuth, Status: 401, Err: errors.New("401")}, http.StatusInternalServerError, apperrors.CodeAIAuth, ""},
		{"timeout", &provider.Error{Kind: provider.KindTimeout, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, apperrors.CodeAITimeout, ""},
		{"unavailable", &provider.Error{Kind: provider.KindUnavailable, Status: 502, Err: errors.New("502")}, http.StatusServiceUnavailable, apperrors.CodeAIService, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			id := h.seed(t, "alice")
			h.llm.err = tt.err

			w := h.do(http.MethodPost, "/api/chat", id, "", map[string]string{"message": "hi", "sessionId": "s1"})
			require.Equal(t, tt.status, w.Code, w.Body.String())
			b := body(t, w)
			assert.Equal(t, false, b["success"])
			assert.Equal(t, tt.code, b["code"])
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))

			// The user's message stays recorded.
			conv, err := h.stores.Conversations.Get(context.Background(), id, "s1")
			require.NoError(t, err)
			assert.Len(t, conv.Messages, 1)
		})
	}
}

func TestChatHandlerValidation(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "alice")

	w := h.do(http.MethodPost, "/api/chat", id, "", map[string]string{"message": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)
	b := body(t, w)
	assert.Equal(t, apperrors.CodeValidation, b["code"])
	assert.Equal(t, map[string]any{"field": "message"}, b["details"])
}

func TestSessionEndpoints(t *testing.T) {
	h := newHarness(t)
	id := h.seed(t, "alice")

	w := h.do(http.MethodGet, "/api/chat/sessions/missing", id, "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Chat session not found", body(t, w)["error"])

	w = h.do(http.MethodPost, "/api/chat", id, "", map[string]string{"message": "first", "sessionId": "s1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/chat/sessions/s1/window", id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := body(t, w)["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

	w = h.do(http.MethodPost, "/api/chat/sessions/s1/clear", id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Chat session cleared successfully", body(t, w)["message"])

	w = h.do(http.MethodGet, "/api/chat/sessions/s1", id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	session := body(t, w)["session"].(map[string]any)
	assert.Empty(t, session["messages"])
	assert.Equal(t, float64(0), session["totalTokens"])

	w = h.do(http.MethodDelete, "/api/chat/sessions/s1", id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/chat/sessions?active=false", id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	b := body(t, w)
	assert.Len(t, b["sessions"], 1)
	assert.Equal(t, float64(1), b["pagination"].(map[string]any)["total"])
}

func TestMeUnknownAccount(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/api/auth/me", "ghost", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", body(t, w)["error"])
}

func TestAdminEndpoints(t *testing.T) {
	h := newHarness(t)
	admin := h.seed(t, "root")
	user := h.seed(t, "alice")

	w := h.do(http.MethodPut, "/api/admin/users/"+user+"/active", admin, jwt.RoleAdmin, map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPut, "/api/admin/users/"+user+"/active", admin, jwt.RoleAdmin, map[string]any{"isActive": false})
	require.Equal(t, http.StatusOK, w.Code)
	acc, err := h.accounts.Get(context.Background(), user)
	require.NoError(t, err)
	assert.False(t, acc.Active)

	w = h.do(http.MethodPut, "/api/admin/users/"+user+"/role", admin, jwt.RoleAdmin, map[string]any{"role": "superuser"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPut, "/api/admin/users/"+user+"/role", admin, jwt.RoleAdmin, map[string]any{"role": "moderator"})
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/api/admin/users/nobody/usage/reset", admin, jwt.RoleAdmin, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodPost, "/api/admin/sessions/cleanup?days=0", admin, jwt.RoleAdmin, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/admin/sessions/cleanup", admin, jwt.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body(t, w)["deactivated"])

	w = h.do(http.MethodGet, "/api/admin/users", user, jwt.RoleModerator, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFeatureHandlers(t *testing.T) {
	h := newHarness(t)
	admin := h.seed(t, "root")

	w := h.do(http.MethodPost, "/api/features/bulk-import", admin, jwt.RoleAdmin, map[string]any{"features": []any{}})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/features/bulk-import", admin, jwt.RoleAdmin, map[string]any{
		"features": []map[string]any{
			{"id": 1, "title": "Crop doctor", "description": "Diagnoses crops", "category": "Dwiju Farmer"},
			{"id": 2, "title": "", "description": "missing title", "category": "Dwiju Farmer"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	result := body(t, w)["result"].(map[string]any)
	assert.Equal(t, float64(1), result["imported"])
	assert.Len(t, result["errors"], 1)

	w = h.do(http.MethodPut, "/api/features/1", admin, jwt.RoleModerator, map[string]any{"priority": 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body(t, w)["feature"].(map[string]any)["priority"])

	w = h.do(http.MethodGet, "/api/features/categories", "", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body(t, w)["categories"], 1)

	w = h.do(http.MethodDelete, "/api/features/1", admin, jwt.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Feature deactivated successfully", body(t, w)["message"])

	w = h.do(http.MethodDelete, "/api/features/1?permanent=true", admin, jwt.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodGet, "/api/features/1", "", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, "/api/features/0", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
