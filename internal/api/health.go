package api

import (
	"net/http"

	"dwiju-assistant/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// Handler handles health check endpoints
type Handler struct {
	checker *health.Checker
}

// NewHealthHandler creates a health handler backed by checker.
func NewHealthHandler(checker *health.Checker) *Handler {
	return &Handler{checker: checker}
}

// HealthHandler reports process and component health. It answers 503 when
// a critical component is down.
func (h *Handler) HealthHandler(c *gin.Context) {
	report := h.checker.Report()
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// RegisterHealthRoutes registers health check related routes
func (h *Handler) RegisterHealthRoutes(router gin.IRoutes) {
	router.GET("/health", h.HealthHandler)
}
