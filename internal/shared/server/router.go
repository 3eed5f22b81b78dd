package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"prreview-backend/internal/shared/config"
	"prreview-backend/internal/shared/metrics"
	"prreview-backend/internal/shared/server/middleware"
	"prreview-backend/internal/shared/server/respond"
	"prreview-backend/internal/tasks"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config, taskHandler *tasks.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.RateLimit(rateLimitConfig()),
	)

	r.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "pr-review-agent",
		})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	taskHandler.RegisterRoutes(api)

	return r
}

// Status polls arrive far more often than mutations, so they get their own
// higher-rate bucket.
func rateLimitConfig() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{
		DefaultGroup: "DEFAULT",
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodGet {
				switch c.FullPath() {
				case "/api/v1/status/:task_id", "/api/v1/results/:task_id":
					return "POLLING"
				}
			}
			return "DEFAULT"
		},
		Rules: map[string]middleware.RateLimitRule{
			"DEFAULT": {Rate: 5, Burst: 20},
			"POLLING": {Rate: 25, Burst: 100},
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
