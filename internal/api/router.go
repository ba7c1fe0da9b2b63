package api

import (
	"postflow/internal/metrics"
	"postflow/internal/middleware"
	"postflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	Codec             *service.TokenCodec
	DevMode           bool
	Redis             *redis.Client // nil limits in memory only
	RequestsPerSecond int
}

func RegisterRoutes(jobHandler *JobHandler, cfg RouterConfig) *gin.Engine {
	r := gin.New()

	// Global Middleware
	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.TraceMiddleware(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", jobHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	protected := r.Group("/v1")
	protected.Use(middleware.JWTMiddleware(cfg.Codec, cfg.DevMode))

	// Rate Limiter for Write Operations
	writeLimiter := middleware.RateLimitMiddleware(cfg.Redis, cfg.RequestsPerSecond)

	{
		protected.POST("/jobs", writeLimiter, jobHandler.CreateJob)
		protected.POST("/jobs/cancel", writeLimiter, jobHandler.CancelJob)
		protected.GET("/jobs/:id", jobHandler.GetJob)
		protected.PUT("/organizations/:orgId/secrets/:platform", writeLimiter, jobHandler.SetSecret)
	}
	return r
}
