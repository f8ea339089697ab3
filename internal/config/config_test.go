package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV": "local", "APP_PORT": "8080", "DB_USER": "app", "DB_HOST": "localhost",
		"DB_PORT": "3306", "DB_NAME": "entitlements", "JWT_SECRET": "s3cret",
	} {
		t.Setenv(k, v)
	}
}

func TestRead_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Read()
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Env)
	assert.True(t, cfg.DB.AutoMigrate)
	assert.Equal(t, "fitness.events", cfg.Broker.Exchange)
	assert.Equal(t, "sandbox", cfg.Provider.Name)
	assert.Equal(t, uint(5), cfg.Booking.CASAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Booking.CASDelay)
	assert.Equal(t, uint(4), cfg.Listener.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Listener.RetryDelay)
	assert.Equal(t, 50, cfg.Listener.Prefetch)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, time.Minute, cfg.Sweeper.Interval)
}

func TestRead_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PAYMENT_PROVIDER", "mercadopago")
	t.Setenv("QUOTA_CAS_ATTEMPTS", "9")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg, err := Read()
	require.NoError(t, err)
	assert.Equal(t, "mercadopago", cfg.Provider.Name)
	assert.Equal(t, uint(9), cfg.Booking.CASAttempts)
	assert.False(t, cfg.DB.AutoMigrate)
}

func TestRead_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := Read()
	assert.Error(t, err)
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_TOKENS", "2")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "500ms")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 2500*time.Millisecond, cfg.TTL)
	assert.InDelta(t, 4.0, cfg.PerSecond(), 0.0001)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_TTL", "nonsense")

	cfg := LoadCacheConfig()
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, 30*time.Second, cfg.TTL)
	assert.True(t, cfg.Enabled)
}
