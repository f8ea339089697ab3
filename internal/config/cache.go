package config

import "time"

// CacheConfig drives the Redis response cache in front of the offer
// catalog reads. Caching is off when Enabled is false or Redis is down.
type CacheConfig struct {
	Enabled      bool
	Methods      map[string]bool
	TTL          time.Duration
	KeyStrategy  string // route, method_route, route_query or method_route_query
	Prefix       string
	MaxBodyBytes int
}

func LoadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      envBool("CACHE_ENABLED", true),
		Methods:      envSet("CACHE_METHODS", "GET"),
		TTL:          envDur("CACHE_TTL", 30*time.Second),
		KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "route_query"),
		Prefix:       envStr("CACHE_PREFIX", "entitlements:cache"),
		MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
	}
}
