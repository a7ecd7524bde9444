package api

import (
	"net/http"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/service"
	"dwiju-assistant/backend/pkg/logger"
	"dwiju-assistant/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const accountNotFound = "User not found"

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	accounts *service.AccountService
	logger   *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *service.AccountService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	res, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err, accountNotFound)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    res.Account,
		"token":   res.Token,
	})
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}

	res, err := h.accounts.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, err, accountNotFound)
		return
	}

	logger.FromGin(c).Info("user logged in", "user_id", res.Account.ID, "role", res.Account.Role)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    res.Account,
		"token":   res.Token,
	})
}

// Me returns the current authenticated user
func (h *AuthHandler) Me(c *gin.Context) {
	account, err := h.accounts.Get(c.Request.Context(), c.GetString(middleware.UserIDKey))
	if err != nil {
		fail(c, err, accountNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": account})
}
