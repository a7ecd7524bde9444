package api

import (
	"net/http"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/service"
	"dwiju-assistant/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves account and session administration.
type AdminHandler struct {
	accounts *service.AccountService
	ledger   *service.Ledger
	idleDays int
	logger   *logger.Logger
}

// NewAdminHandler creates a new AdminHandler. idleDays is the default for
// the cleanup endpoint.
func NewAdminHandler(accounts *service.AccountService, ledger *service.Ledger, idleDays int, logger *logger.Logger) *AdminHandler {
	if idleDays < 1 {
		idleDays = 30
	}
	return &AdminHandler{accounts: accounts, ledger: ledger, idleDays: idleDays, logger: logger}
}

// ListUsers handles GET /api/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, page, err := h.accounts.List(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		fail(c, err, accountNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": users, "pagination": page})
}

// UpdateRole handles PUT /api/admin/users/:id/role
func (h *AdminHandler) UpdateRole(c *gin.Context) {
	var req models.RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	if err := h.accounts.UpdateRole(c.Request.Context(), c.Param("id"), req.Role); err != nil {
		fail(c, err, accountNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User role updated successfully"})
}

// SetActive handles PUT /api/admin/users/:id/active
func (h *AdminHandler) SetActive(c *gin.Context) {
	var req models.ActiveUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		badRequest(c, "isActive is required")
		return
	}
	if err := h.accounts.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		fail(c, err, accountNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User status updated successfully"})
}

// ResetUsage handles POST /api/admin/users/:id/usage/reset
func (h *AdminHandler) ResetUsage(c *gin.Context) {
	if err := h.accounts.ResetUsage(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err, accountNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Usage counters reset"})
}

// DeleteSession handles DELETE /api/admin/sessions/:id. This is a hard delete.
func (h *AdminHandler) DeleteSession(c *gin.Context) {
	if err := h.ledger.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err, sessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chat session permanently deleted"})
}

// CleanupSessions handles POST /api/admin/sessions/cleanup?days=N
func (h *AdminHandler) CleanupSessions(c *gin.Context) {
	n, err := h.ledger.CleanupIdle(c.Request.Context(), queryInt(c, "days", h.idleDays))
	if err != nil {
		fail(c, err, sessionNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deactivated": n})
}

// RegisterRoutes registers the admin routes on a group already restricted
// to admins.
func (h *AdminHandler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/users", h.ListUsers)
	admin.PUT("/users/:id/role", h.UpdateRole)
	admin.PUT("/users/:id/active", h.SetActive)
	admin.POST("/users/:id/usage/reset", h.ResetUsage)
	admin.DELETE("/sessions/:id", h.DeleteSession)
	admin.POST("/sessions/cleanup", h.CleanupSessions)
}
