package router

import (
	"net/http"
	"os"

	"dwiju-assistant/backend/api"
	"dwiju-assistant/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// addOpenAPIValidation validates /api requests against the embedded document
// and serves it at /api/docs/openapi.yaml.
func (r *Router) addOpenAPIValidation(group *gin.RouterGroup) {
	v, err := validator.NewOpenAPIValidator(api.OpenAPI, r.Logger)
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator", "error", err)
		return
	}

	group.Use(v.Middleware())
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", api.OpenAPI)
	})
	r.Logger.Info("OpenAPI validation enabled", "url", "/api/docs/openapi.yaml")

	if swaggerUIPath := r.Container.Config.Server.SwaggerUIPath; swaggerUIPath != "" && dirExists(swaggerUIPath) {
		r.Engine.Static("/swagger-ui", swaggerUIPath)
		r.Logger.Info("Swagger UI available", "url", "/swagger-ui/")
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
