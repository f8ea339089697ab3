package config

import (
	"context"
	"crypto/tls"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects using REDIS_ADDR (or REDIS_HOST and REDIS_PORT),
// REDIS_PASSWORD, REDIS_DB and REDIS_TLS. It returns nil when the server does
// not answer a ping, and callers then run without cache and with the
// in-process rate limiter.
func NewRedisClient(ctx context.Context) *redis.Client {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}
	if envBool("REDIS_TLS", false) {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
