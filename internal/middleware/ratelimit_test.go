package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitness-entitlements/internal/config"
)

func limitCfg() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
}

func limitedEcho(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.POST("/v1/payments/webhook", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, mw)
	return e
}

func webhookReq() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/payments/webhook", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	return req
}

func TestTokenBucket_LocalFallback(t *testing.T) {
	e := limitedEcho(NewTokenBucket(limitCfg(), nil))

	first := serve(e, webhookReq())
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, serve(e, webhookReq()).Code)

	blocked := serve(e, webhookReq())
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "60", blocked.Header().Get("Retry-After"))
	assert.Contains(t, blocked.Body.String(), "too_many_requests")
}

func TestTokenBucket_Disabled(t *testing.T) {
	cfg := limitCfg()
	cfg.Enabled = false
	e := limitedEcho(NewTokenBucket(cfg, nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(e, webhookReq()).Code)
	}
}

func TestTokenBucket_Redis(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock = func() time.Time { return fixed }
	t.Cleanup(func() { clock = time.Now })

	cfg := limitCfg()
	key := "rl:ip:10.0.0.7"
	args := []any{fixed.UnixMilli(), cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(), int64(cfg.TTL / time.Second)}

	rdb, mock := redismock.NewClientMock()
	mock.ExpectEvalSha(tokenBucketScript.Hash(), []string{key}, args...).SetVal([]any{int64(1), int64(1), int64(0)})
	mock.ExpectEvalSha(tokenBucketScript.Hash(), []string{key}, args...).SetVal([]any{int64(0), int64(0), int64(1500)})
	mock.ExpectEvalSha(tokenBucketScript.Hash(), []string{key}, args...).SetErr(errors.New("connection refused"))

	e := limitedEcho(NewTokenBucket(cfg, rdb))

	ok := serve(e, webhookReq())
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "1", ok.Header().Get("X-RateLimit-Remaining"))

	blocked := serve(e, webhookReq())
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "2", blocked.Header().Get("Retry-After"))

	// Redis failure falls back to the local bucket, which is still full.
	assert.Equal(t, http.StatusOK, serve(e, webhookReq()).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/bookings", nil)
	req.RemoteAddr = "10.0.0.1:1"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/bookings")
	c.Set(CtxUserID, "u1")

	cfg := limitCfg()
	cfg.KeyStrategy = "user_route"
	assert.Equal(t, "rl:user:u1:route:GET /v1/bookings", buildRateKey(cfg, c))
	cfg.KeyStrategy = ""
	assert.Equal(t, "rl:ip:10.0.0.1:user:u1:route:GET /v1/bookings", buildRateKey(cfg, c))
}
