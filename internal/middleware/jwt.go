package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// JWTAuth validates an HS256 bearer token and stores its sub and role
// claims in the echo context. Tokens are issued elsewhere; this service only
// verifies them.
func JWTAuth(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			raw, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			claims := jwt.MapClaims{}
			tok, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return key, nil })
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			sub, _ := claims["sub"].(string)
			role, _ := claims["role"].(string)
			if sub == "" || role == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			c.Set(CtxUserID, sub)
			c.Set(CtxRole, role)
			req := c.Request()
			ctx := logger.WithContext(req.Context(), logger.FromContext(req.Context()).With("user_id", sub))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
