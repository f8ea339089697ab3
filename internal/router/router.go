// Package router wires handlers, middleware and roles onto an echo instance.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fitness-entitlements/internal/config"
	"github.com/iliyamo/fitness-entitlements/internal/handler"
	"github.com/iliyamo/fitness-entitlements/internal/metrics"
	"github.com/iliyamo/fitness-entitlements/internal/middleware"
	"github.com/iliyamo/fitness-entitlements/internal/model"
)

// Deps is everything the HTTP surface needs. Redis is optional: without it
// the webhook limiter runs in-process and offer reads are not cached.
type Deps struct {
	Log       *slog.Logger
	JWTSecret string
	DB        handler.Pinger
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig

	Payments      *handler.PaymentHandler
	Bookings      *handler.BookingHandler
	Quotas        *handler.QuotaHandler
	Offerts       *handler.OffertHandler
	Subscriptions *handler.SubscriptionHandler
	Admin         *handler.AdminHandler
}

func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID(d.Log))
	e.Use(middleware.AccessLog())
	e.Use(metrics.Middleware())

	RegisterPublic(e, d)
	RegisterAPI(e, d)
	return e
}

// RegisterPublic mounts the routes that carry no access token.
func RegisterPublic(e *echo.Echo, d Deps) {
	var scripter redis.Scripter
	if d.Redis != nil {
		scripter = d.Redis
	}
	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.POST("/v1/payments/webhook", d.Payments.Webhook, middleware.NewTokenBucket(d.RateLimit, scripter))
}

// RegisterAPI mounts the authenticated /v1 routes.
func RegisterAPI(e *echo.Echo, d Deps) {
	var cmd redis.Cmdable
	if d.Redis != nil {
		cmd = d.Redis
	}

	v1 := e.Group("/v1", middleware.JWTAuth(d.JWTSecret),
		middleware.RequireRole(model.RoleUser, model.RoleTrainer, model.RoleGymOwner, model.RoleAdmin))
	trainers := middleware.RequireRole(model.RoleTrainer, model.RoleAdmin)

	payments := v1.Group("/payments", middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	payments.POST("", d.Payments.Create)
	payments.GET("", d.Payments.List)
	payments.GET("/:id", d.Payments.Get)
	payments.POST("/:id/cancel", d.Payments.Cancel)

	bookings := v1.Group("/bookings")
	bookings.POST("", d.Bookings.Create)
	bookings.GET("", d.Bookings.List)
	bookings.GET("/:id", d.Bookings.Get)
	bookings.POST("/:id/cancel", d.Bookings.Cancel)
	bookings.POST("/:id/confirm", d.Bookings.Confirm, trainers)
	bookings.POST("/:id/complete", d.Bookings.Complete, trainers)

	v1.GET("/quotas", d.Quotas.List)
	v1.GET("/quotas/:id", d.Quotas.Get)

	offerts := v1.Group("/trainer-offerts")
	offerts.GET("", d.Offerts.List, middleware.NewRedisCache(d.Cache, cmd))
	offerts.GET("/:id", d.Offerts.Get)
	offerts.POST("", d.Offerts.Create, middleware.RequireRole(model.RoleTrainer))
	offerts.PATCH("/:id", d.Offerts.Update, middleware.RequireRole(model.RoleTrainer))
	offerts.POST("/:id/activate", d.Offerts.Activate, middleware.RequireRole(model.RoleTrainer))
	offerts.POST("/:id/deactivate", d.Offerts.Deactivate, middleware.RequireRole(model.RoleTrainer))

	v1.GET("/subscriptions", d.Subscriptions.List)
	v1.POST("/subscriptions/:id/cancel", d.Subscriptions.Cancel)

	admin := v1.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	admin.POST("/quotas", d.Admin.GenerateQuota)
	admin.POST("/subscriptions", d.Admin.CreateSubscription)
}
