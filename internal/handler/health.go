package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health answers load balancer probes. With a database attached it also
// reports 503 while the database is unreachable.
func Health(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "database": "down"})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}
