package api

import (
	"net/http"
	"strconv"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/service"
	"dwiju-assistant/backend/internal/store"
	"dwiju-assistant/backend/pkg/logger"
	"dwiju-assistant/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const sessionNotFound = "Chat session not found"

// ChatHandler serves chat exchanges and the caller's own sessions.
type ChatHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat *service.ChatService, logger *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	resp, err := h.chat.Exchange(c.Request.Context(), c.GetString(middleware.UserIDKey), req)
	if err != nil {
		fail(c, err, sessionNotFound)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListSessions handles GET /api/chat/sessions
func (h *ChatHandler) ListSessions(c *gin.Context) {
	q := store.ConversationQuery{
		Page:       queryInt(c, "page", 1),
		Limit:      queryInt(c, "limit", 20),
		ActiveOnly: c.DefaultQuery("active", "true") == "true",
	}
	sessions, page, err := h.chat.Ledger().ListConversations(c.Request.Context(), c.GetString(middleware.UserIDKey), q)
	if err != nil {
		fail(c, err, sessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"sessions":   sessions,
		"pagination": page,
	})
}

// GetSession handles GET /api/chat/sessions/:id
func (h *ChatHandler) GetSession(c *gin.Context) {
	conv, err := h.chat.Ledger().GetConversation(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("id"))
	if err != nil {
		fail(c, err, sessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": conv})
}

// DeleteSession handles DELETE /api/chat/sessions/:id. The session is only
// deactivated.
func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.chat.Ledger().DeactivateConversation(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("id")); err != nil {
		fail(c, err, sessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chat session deleted successfully"})
}

// ClearSession handles POST /api/chat/sessions/:id/clear
func (h *ChatHandler) ClearSession(c *gin.Context) {
	if _, err := h.chat.Ledger().ClearConversation(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("id")); err != nil {
		fail(c, err, sessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chat session cleared successfully"})
}

// PromptWindow handles GET /api/chat/sessions/:id/window
func (h *ChatHandler) PromptWindow(c *gin.Context) {
	window, err := h.chat.Ledger().BuildPromptWindow(c.Request.Context(), c.GetString(middleware.UserIDKey), c.Param("id"), 0)
	if err != nil {
		fail(c, err, sessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": window})
}

// RegisterRoutes registers the chat routes on an authenticated group.
func (h *ChatHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/chat", h.Chat)

	sessions := api.Group("/chat/sessions")
	{
		sessions.GET("", h.ListSessions)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.DeleteSession)
		sessions.POST("/:id/clear", h.ClearSession)
		sessions.GET("/:id/window", h.PromptWindow)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
