package config

import "time"

// RateLimitConfig describes a token bucket: Capacity tokens, refilled by
// RefillTokens every RefillInterval. Buckets live in Redis under Prefix and
// expire after TTL of inactivity.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_user_route"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "entitlements:rl"),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	return cfg.normalize()
}

func (c RateLimitConfig) normalize() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}

// PerSecond is the steady refill rate, used by the in-process fallback.
func (c RateLimitConfig) PerSecond() float64 {
	return float64(c.RefillTokens) / c.RefillInterval.Seconds()
}
