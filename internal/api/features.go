package api

import (
	"net/http"
	"strconv"

	"dwiju-assistant/backend/internal/models"
	"dwiju-assistant/backend/internal/service"
	"dwiju-assistant/backend/pkg/logger"
	"dwiju-assistant/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const featureNotFound = "Feature not found"

// FeatureHandler serves the capability catalog.
type FeatureHandler struct {
	features *service.FeatureService
	logger   *logger.Logger
}

// NewFeatureHandler creates a new feature handler
func NewFeatureHandler(features *service.FeatureService, logger *logger.Logger) *FeatureHandler {
	return &FeatureHandler{features: features, logger: logger}
}

// List handles GET /api/features
func (h *FeatureHandler) List(c *gin.Context) {
	q := service.FeatureListQuery{
		Page:      queryInt(c, "page", 1),
		Limit:     queryInt(c, "limit", 20),
		Category:  c.Query("category"),
		Search:    c.Query("search"),
		Active:    c.DefaultQuery("active", "true"),
		SortBy:    c.DefaultQuery("sortBy", "id"),
		SortOrder: c.DefaultQuery("sortOrder", "asc"),
	}
	features, page, err := h.features.List(c.Request.Context(), q)
	if err != nil {
		fail(c, err, featureNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "features": features, "pagination": page})
}

// Categories handles GET /api/features/categories
func (h *FeatureHandler) Categories(c *gin.Context) {
	groups, err := h.features.Categories(c.Request.Context())
	if err != nil {
		fail(c, err, featureNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "categories": groups})
}

// Get handles GET /api/features/:id
func (h *FeatureHandler) Get(c *gin.Context) {
	id, ok := featureID(c)
	if !ok {
		return
	}
	f, err := h.features.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err, featureNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "feature": f})
}

// Create handles POST /api/features
func (h *FeatureHandler) Create(c *gin.Context) {
	var in models.FeatureInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	f, err := h.features.Create(c.Request.Context(), in, c.GetString(middleware.UserIDKey))
	if err != nil {
		fail(c, err, featureNotFound)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "feature": f})
}

// Update handles PUT /api/features/:id
func (h *FeatureHandler) Update(c *gin.Context) {
	id, ok := featureID(c)
	if !ok {
		return
	}
	var patch models.FeaturePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	f, err := h.features.Update(c.Request.Context(), id, patch, c.GetString(middleware.UserIDKey))
	if err != nil {
		fail(c, err, featureNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "feature": f})
}

// Delete handles DELETE /api/features/:id?permanent=true
func (h *FeatureHandler) Delete(c *gin.Context) {
	id, ok := featureID(c)
	if !ok {
		return
	}
	permanent := c.Query("permanent") == "true"
	if err := h.features.Delete(c.Request.Context(), id, permanent, c.GetString(middleware.UserIDKey)); err != nil {
		fail(c, err, featureNotFound)
		return
	}
	msg := "Feature deactivated successfully"
	if permanent {
		msg = "Feature deleted permanently"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

// BulkImport handles POST /api/features/bulk-import
func (h *FeatureHandler) BulkImport(c *gin.Context) {
	var req models.BulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	if len(req.Features) == 0 {
		badRequest(c, "features must be a non-empty array")
		return
	}
	res, err := h.features.BulkImport(c.Request.Context(), req.Features, req.Overwrite, c.GetString(middleware.UserIDKey))
	if err != nil {
		fail(c, err, featureNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

// RegisterRoutes registers the catalog routes. Reads are public.
func (h *FeatureHandler) RegisterRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	features := api.Group("/features")
	{
		features.GET("", h.List)
		features.GET("/categories", h.Categories)
		features.GET("/:id", h.Get)
		features.POST("", auth, middleware.RequireAdmin(), h.Create)
		features.POST("/bulk-import", auth, middleware.RequireAdmin(), h.BulkImport)
		features.PUT("/:id", auth, middleware.RequireModerator(), h.Update)
		features.DELETE("/:id", auth, middleware.RequireAdmin(), h.Delete)
	}
}

func featureID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		badRequest(c, "Feature id must be a positive integer")
		return 0, false
	}
	return id, true
}
