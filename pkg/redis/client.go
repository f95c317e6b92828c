// Package redis provides Redis client utilities.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// NewClient creates a new Redis client and verifies connectivity.
// Returns nil when the server is unreachable; callers treat a nil
// client as "rate limiting disabled" rather than refusing to boot.
func NewClient(host, port, password string) *redis.Client {
	options := &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	}

	// Managed Redis behind a password generally also requires TLS.
	if password != "" {
		options.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(options)

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("redis: connection failed, rate limiting disabled: %v", err)
		return nil
	}
	return client
}
