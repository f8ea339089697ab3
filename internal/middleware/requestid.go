package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
)

const (
	HeaderRequestID     = "X-Request-Id"
	HeaderCorrelationID = "X-Correlation-Id"
)

// RequestID reuses the caller's request or correlation id, or makes one,
// echoes it back and puts a logger carrying it into the request context.
func RequestID(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(HeaderRequestID)
			if id == "" {
				id = req.Header.Get(HeaderCorrelationID)
			}
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, id)
			ctx := logger.WithContext(req.Context(), base.With(slog.String("request_id", id)))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// AccessLog writes one line per request with the request-scoped logger.
func AccessLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			res := c.Response()
			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			}
			logger.FromContext(c.Request().Context()).Log(c.Request().Context(), level, "http request",
				slog.String("method", c.Request().Method),
				slog.String("route", c.Path()),
				slog.String("uri", c.Request().RequestURI),
				slog.Int("status", res.Status),
				slog.Int64("bytes", res.Size),
				slog.Duration("latency", time.Since(start)),
				slog.String("ip", c.RealIP()),
			)
			return nil
		}
	}
}
