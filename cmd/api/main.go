// Package main is the entry point for the auth service.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/arvense/authtrail/internal/config"
	"github.com/arvense/authtrail/internal/handlers"
	"github.com/arvense/authtrail/internal/models"
	"github.com/arvense/authtrail/internal/repository"
	"github.com/arvense/authtrail/internal/routes"
	"github.com/arvense/authtrail/internal/service"
	"github.com/arvense/authtrail/pkg/redis"
)

// @title Authtrail API
// @version 1.0
// @description Authentication and audit-trail service
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load configuration; missing secrets are fatal here, not at
	// request time.
	cfg := config.Load()

	// Initialize database
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.AuditLog{}); err != nil {
		log.Fatal("Failed to migrate schema:", err)
	}

	// Initialize Redis (optional; nil disables rate limiting)
	redisClient := redis.NewClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Initialize services
	jwtService := service.NewJWTService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenExpiry, cfg.RefreshTokenExpiry)
	recorder := service.NewAuditRecorder(auditRepo, cfg.AuditQueueSize)
	defer recorder.Close()

	var verifier service.GoogleVerifier
	if cfg.GoogleClientID != "" {
		verifier, err = service.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleJWKSURL)
		if err != nil {
			log.Printf("Google sign-in unavailable: %v", err)
		}
	}

	mailer := service.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)

	authService := service.NewAuthService(userRepo, jwtService, verifier, mailer, recorder, service.AuthConfig{
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutDuration,
	})

	// Initialize handlers
	handlers.SetErrorDetail(!cfg.IsProduction())
	authHandler := handlers.NewAuthHandler(authService)
	auditHandler := handlers.NewAuditHandler(auditRepo, cfg.AuditExportCap)
	healthHandler := handlers.NewHealthHandler()

	// Retention sweep: best-effort housekeeping, once a day.
	go retentionSweep(auditRepo, cfg.AuditRetention)

	// Setup router
	router := gin.Default()
	routes.Setup(router, routes.Deps{
		Config:       cfg,
		JWTService:   jwtService,
		Recorder:     recorder,
		RedisClient:  redisClient,
		AuthHandler:  authHandler,
		AuditHandler: auditHandler,
		Health:       healthHandler,
	})

	// Start server
	log.Printf("Starting auth service on port %s", cfg.Port)
	if err := router.Run(fmt.Sprintf(":%s", cfg.Port)); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func retentionSweep(auditRepo repository.AuditLogRepository, retention time.Duration) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		removed, err := auditRepo.DeleteOlderThan(ctx, time.Now().Add(-retention))
		cancel()
		if err != nil {
			log.Printf("audit retention sweep failed: %v", err)
			continue
		}
		if removed > 0 {
			log.Printf("audit retention sweep removed %d entries", removed)
		}
	}
}
