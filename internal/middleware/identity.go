package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitness-entitlements/internal/model"
)

// ActorFrom returns the caller authenticated by JWTAuth. Outside an
// authenticated group it is the zero Actor, which owns nothing.
func ActorFrom(c echo.Context) model.Actor {
	id, _ := c.Get(CtxUserID).(string)
	role, _ := c.Get(CtxRole).(string)
	return model.Actor{UserID: id, Role: role}
}

// userID names the caller in rate limit keys.
func userID(c echo.Context) string {
	if id, ok := c.Get(CtxUserID).(string); ok && id != "" {
		return id
	}
	return "anon"
}
