// Package config handles configuration loading for the auth service.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the auth service. It is built
// once at boot and passed by reference into each component; nothing
// reads the environment after Load returns.
type Config struct {
	DatabaseDSN   string
	RedisHost     string
	RedisPort     string
	RedisPassword string

	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	GoogleClientID string
	GoogleJWKSURL  string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	MailFrom     string

	AllowedOrigins []string

	RateLimitWindow time.Duration
	RateLimitMax    int

	LockoutThreshold int
	LockoutDuration  time.Duration

	AuditRetention  time.Duration
	AuditQueueSize  int
	AuditExportCap  int

	Port        string
	Environment string
}

// Load reads configuration from environment variables, with an
// optional .env overlay for local development. Missing required keys
// are fatal: better to die at boot than to issue unverifiable tokens.
func Load() *Config {
	// .env is optional; env vars win in real deployments.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseDSN:   getEnvRequired("DATABASE_DSN"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		AccessTokenSecret:  getEnvRequired("JWT_ACCESS_SECRET"),
		RefreshTokenSecret: getEnvRequired("JWT_REFRESH_SECRET"),
		AccessTokenExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "168h"), 168*time.Hour),
		RefreshTokenExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "720h"), 720*time.Hour),

		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleJWKSURL:  getEnv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@localhost"),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		RateLimitWindow: parseDuration(getEnv("RATE_LIMIT_WINDOW", "1m"), time.Minute),
		RateLimitMax:    parseInt(getEnv("RATE_LIMIT_MAX", "100"), 100),

		LockoutThreshold: parseInt(getEnv("LOCKOUT_THRESHOLD", "5"), 5),
		LockoutDuration:  parseDuration(getEnv("LOCKOUT_DURATION", "2h"), 2*time.Hour),

		AuditRetention: parseDuration(getEnv("AUDIT_RETENTION", "17520h"), 17520*time.Hour),
		AuditQueueSize: parseInt(getEnv("AUDIT_QUEUE_SIZE", "1024"), 1024),
		AuditExportCap: parseInt(getEnv("AUDIT_EXPORT_CAP", "10000"), 10000),

		Port:        getEnv("PORT", "8084"),
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	return cfg
}

// IsProduction reports whether the service runs in production mode.
// Error responses include internal detail only when this is false.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("required environment variable %s is not set", key)
	}
	return value
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func parseInt(value string, defaultValue int) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
