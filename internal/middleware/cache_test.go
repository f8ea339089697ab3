package middleware

import (
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

func cacheCfg() config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Methods:     map[string]bool{http.MethodGet: true},
		TTL:         time.Minute,
		KeyStrategy: "route_query",
		Prefix:      "cache",
	}
}

const offerts = `[{"id":"o1"}]`

func cachedEcho(mw echo.MiddlewareFunc, calls *int) *echo.Echo {
	e := echo.New()
	e.GET("/v1/trainer-offerts", func(c echo.Context) error {
		*calls++
		return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, []byte(offerts))
	}, mw)
	return e
}

func TestRedisCache_MissThenStore(t *testing.T) {
	cfg := cacheCfg()
	key := cacheKey(cfg, http.MethodGet, "/v1/trainer-offerts", "trainerId=t1")
	payload, err := encodePayload(http.StatusOK, http.Header{"Content-Type": {echo.MIMEApplicationJSON}}, []byte(offerts))
	require.NoError(t, err)

	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetEx(key, payload, time.Minute).SetVal("OK")

	calls := 0
	rec := serve(cachedEcho(NewRedisCache(cfg, rdb), &calls), httptest.NewRequest(http.MethodGet, "/v1/trainer-offerts?trainerId=t1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, offerts, rec.Body.String())
	assert.Equal(t, 1, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_Hit(t *testing.T) {
	cfg := cacheCfg()
	key := cacheKey(cfg, http.MethodGet, "/v1/trainer-offerts", "trainerId=t1")
	payload, err := encodePayload(http.StatusOK, http.Header{"Content-Type": {echo.MIMEApplicationJSON}}, []byte(offerts))
	require.NoError(t, err)

	rdb, mock := redismock.NewClientMock()
	mock.ExpectGet(key).SetVal(string(payload))

	calls := 0
	rec := serve(cachedEcho(NewRedisCache(cfg, rdb), &calls), httptest.NewRequest(http.MethodGet, "/v1/trainer-offerts?trainerId=t1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, echo.MIMEApplicationJSON, rec.Header().Get("Content-Type"))
	assert.Equal(t, offerts, rec.Body.String())
	assert.Zero(t, calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_DisabledWithoutClient(t *testing.T) {
	calls := 0
	e := cachedEcho(NewRedisCache(cacheCfg(), nil), &calls)
	serve(e, httptest.NewRequest(http.MethodGet, "/v1/trainer-offerts", nil))
	serve(e, httptest.NewRequest(http.MethodGet, "/v1/trainer-offerts", nil))
	assert.Equal(t, 2, calls)
}

func TestPayloadRoundTrip(t *testing.T) {
	bs, err := encodePayload(http.StatusCreated, http.Header{"X-A": {"1", "2"}}, []byte("body"))
	require.NoError(t, err)
	status, hdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, []string{"1", "2"}, hdr["X-A"])
	assert.Equal(t, "body", string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}
