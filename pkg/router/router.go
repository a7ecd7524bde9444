package router

import (
	"net/http"
	"strings"

	"dwiju-assistant/backend/internal/api"
	"dwiju-assistant/backend/internal/ws"
	"dwiju-assistant/backend/pkg/di"
	"dwiju-assistant/backend/pkg/errors"
	"dwiju-assistant/backend/pkg/logger"
	"dwiju-assistant/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
}

// New creates the engine with the global middleware chain. Call SetupRoutes
// before serving.
func New(container *di.Container) *Router {
	cfg := container.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	showDiagnostics := !cfg.IsProduction()

	engine := gin.New()
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler(showDiagnostics))
	engine.Use(errors.RecoveryWithLogger(showDiagnostics))
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(maxBodySize(cfg.Security.MaxBodySize))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Route not found",
			"code":    errors.CodeRouteNotFound,
			"path":    c.Request.URL.Path,
		})
	})

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	c := r.Container
	cfg := c.Config

	jwtAuth := middleware.JWTAuthMiddleware(c.Tokens)

	healthHandler := api.NewHealthHandler(c.Health)
	authHandler := api.NewAuthHandler(c.Accounts, r.Logger)
	chatHandler := api.NewChatHandler(c.Chat, r.Logger)
	featureHandler := api.NewFeatureHandler(c.Features, r.Logger)
	adminHandler := api.NewAdminHandler(c.Accounts, c.Ledger, cfg.Ledger.IdleDays, r.Logger)
	wsHandler := ws.NewHandler(c.Hub, c.Tokens, c.Chat, api.ChatError, cfg.Security.AllowedOrigins, r.Logger)

	healthHandler.RegisterHealthRoutes(r.Engine)
	if c.MetricsHandler != nil {
		r.Engine.GET("/metrics", gin.WrapH(c.MetricsHandler))
	}

	v1 := r.Engine.Group("/api")
	healthHandler.RegisterHealthRoutes(v1)

	rateLimiter := middleware.NewRateLimiter(r.Logger, c.RateLimit, middleware.RateLimiterOptions{
		Points: cfg.Security.RateLimitPoints,
		Window: cfg.Security.RateLimitWindow,
	})
	v1.Use(rateLimiter.Middleware())
	r.addOpenAPIValidation(v1)

	// Public routes
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.GET("/me", jwtAuth, authHandler.Me)
	}
	featureHandler.RegisterRoutes(v1, jwtAuth)

	// Protected routes
	protected := v1.Group("")
	protected.Use(jwtAuth)
	chatHandler.RegisterRoutes(protected)

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	adminHandler.RegisterRoutes(admin)

	// Unprefixed exchange route kept for older clients.
	r.Engine.POST("/chat", rateLimiter.Middleware(), jwtAuth, chatHandler.Chat)

	r.Engine.GET("/ws/chat", wsHandler.ServeWs)
}

// corsMiddleware allows the configured origins, or any origin when the list
// contains "*".
func corsMiddleware(allowed []string) gin.HandlerFunc {
	wildcard := false
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (wildcard || set[origin]) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Authorization, Origin, X-Request-ID, Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, Retry-After")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// maxBodySize caps request bodies at limit bytes.
func maxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
