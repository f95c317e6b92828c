// Package routes defines HTTP routes for the auth service.
package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/arvense/authtrail/internal/config"
	"github.com/arvense/authtrail/internal/handlers"
	"github.com/arvense/authtrail/internal/middleware"
	"github.com/arvense/authtrail/internal/service"
)

// Deps collects everything the route table wires together.
type Deps struct {
	Config       *config.Config
	JWTService   service.JWTService
	Recorder     service.AuditRecorder
	RedisClient  *goredis.Client
	AuthHandler  *handlers.AuthHandler
	AuditHandler *handlers.AuditHandler
	Health       *handlers.HealthHandler
}

// Setup configures all HTTP routes for the application.
func Setup(router *gin.Engine, deps Deps) {
	router.Use(middleware.RequestID())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if deps.RedisClient != nil {
		router.Use(middleware.RateLimit(deps.RedisClient, deps.Config.RateLimitWindow, deps.Config.RateLimitMax))
	}

	// The interceptor wraps everything; its own skip list keeps the
	// health/metrics/audit surfaces out.
	router.Use(middleware.AuditTrail(deps.Recorder, middleware.DefaultAuditTrailConfig()))

	router.GET("/health", deps.Health.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.RequireAuth(deps.JWTService)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/signup", deps.AuthHandler.Signup)
		auth.POST("/signin", deps.AuthHandler.Signin)
		auth.POST("/identity", deps.AuthHandler.GoogleSignin)
		auth.POST("/forgot-password", deps.AuthHandler.ForgotPassword)
		auth.POST("/reset-password", deps.AuthHandler.ResetPassword)
		auth.POST("/refresh-token", deps.AuthHandler.Refresh)

		auth.GET("/me", requireAuth, deps.AuthHandler.Me)
		auth.PUT("/profile", requireAuth, deps.AuthHandler.UpdateProfile)
		auth.POST("/change-password", requireAuth, deps.AuthHandler.ChangePassword)
		auth.POST("/logout", requireAuth, deps.AuthHandler.Logout)
	}

	audit := router.Group("/api/v1/audit", requireAuth)
	{
		audit.GET("/logs", deps.AuditHandler.ListLogs)
		audit.GET("/entity/:entity/:entityId", deps.AuditHandler.EntityLogs)
		audit.GET("/user/:userId/activity", deps.AuditHandler.UserActivity)

		admin := middleware.RequireAdmin()
		audit.GET("/stats", admin, deps.AuditHandler.Stats)
		audit.GET("/log/:logId", admin, deps.AuditHandler.GetLog)
		audit.GET("/export", admin, deps.AuditHandler.Export)
	}
}
