package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/iliyamo/fitness-entitlements/internal/config"
	"github.com/iliyamo/fitness-entitlements/internal/logger"
)

var clock = time.Now

// tokenBucketScript refills and takes one token atomically. It returns
// {allowed, tokens_left, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
	local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals * refill_tokens)
		last_refill = last_refill + intervals * interval_ms
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_after_ms }
`)

// NewTokenBucket limits requests per key (see buildRateKey). Buckets live in
// Redis so every replica shares them; when rdb is nil or a call fails the
// request is judged by an in-process limiter with the same shape instead.
func NewTokenBucket(cfg config.RateLimitConfig, rdb redis.Scripter) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	local := newLocalBuckets(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			ctx := c.Request().Context()

			var (
				allowed   bool
				remaining int64
				retryMs   int64
				err       error
			)
			if rdb != nil {
				allowed, remaining, retryMs, err = redisTake(c, rdb, cfg, key)
				if err != nil && cfg.Debug {
					logger.FromContext(ctx).Warn("ratelimit: redis unavailable, using local bucket",
						"key", key, logger.Err(err))
				}
			}
			if rdb == nil || err != nil {
				allowed, remaining, retryMs = local.take(key)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000))
				h.Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "rate limit exceeded",
					"code":        "too_many_requests",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

func redisTake(c echo.Context, rdb redis.Scripter, cfg config.RateLimitConfig, key string) (bool, int64, int64, error) {
	vals, err := tokenBucketScript.Run(c.Request().Context(), rdb, []string{key},
		clock().UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL/time.Second),
	).Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected script result %v", vals)
	}
	return asInt64(vals[0]) == 1, asInt64(vals[1]), asInt64(vals[2]), nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

// localBuckets is the per-process fallback. Idle keys are dropped once they
// have not been seen for the configured TTL.
type localBuckets struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	buckets map[string]*localBucket
	swept   time.Time
	now     func() time.Time
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLocalBuckets(cfg config.RateLimitConfig) *localBuckets {
	return &localBuckets{
		limit:   rate.Limit(cfg.PerSecond()),
		burst:   cfg.Capacity,
		ttl:     cfg.TTL,
		buckets: map[string]*localBucket{},
		now:     clock,
	}
}

func (l *localBuckets) take(key string) (bool, int64, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.swept) > l.ttl {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay.Milliseconds()
	}
	return true, int64(b.lim.TokensAt(now)), 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c)
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
