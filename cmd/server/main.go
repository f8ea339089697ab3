package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/iliyamo/fitness-entitlements/internal/config"
	"github.com/iliyamo/fitness-entitlements/internal/database"
	"github.com/iliyamo/fitness-entitlements/internal/handler"
	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/provider"
	"github.com/iliyamo/fitness-entitlements/internal/repository"
	"github.com/iliyamo/fitness-entitlements/internal/router"
	"github.com/iliyamo/fitness-entitlements/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.DSN(cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name))
	if err != nil {
		log.Error("database unavailable", logger.Err(err))
		os.Exit(1)
	}
	defer db.Close()
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Error("migration failed", logger.Err(err))
			os.Exit(1)
		}
	}

	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		log.Warn("redis unavailable, running without cache and with local rate limits")
	} else {
		defer rdb.Close()
	}

	gateway, err := newGateway(cfg.Provider, log)
	if err != nil {
		log.Error("payment provider setup failed", logger.Err(err))
		os.Exit(1)
	}

	payments := repository.NewPaymentRepo(db)
	quotas := repository.NewQuotaRepo(db)
	bookings := repository.NewBookingRepo(db)
	offerts := repository.NewOffertRepo(db)
	subs := repository.NewSubscriptionRepo(db)

	paymentSvc := service.NewPaymentService(payments, offerts, gateway, log)
	quotaSvc := service.NewQuotaService(quotas, log)
	bookingSvc := service.NewBookingService(quotas, bookings, repository.NewLedgerRepo(db),
		service.CASPolicy{Attempts: cfg.Booking.CASAttempts, Delay: cfg.Booking.CASDelay}, log)
	offertSvc := service.NewOffertService(offerts, log)
	subSvc := service.NewSubscriptionService(subs, offerts, log)

	e := router.New(router.Deps{
		Log:           log,
		JWTSecret:     cfg.JWTSecret,
		DB:            db,
		Redis:         rdb,
		RateLimit:     config.LoadRateLimitConfig(),
		Cache:         config.LoadCacheConfig(),
		Payments:      handler.NewPaymentHandler(paymentSvc, gateway),
		Bookings:      handler.NewBookingHandler(bookingSvc),
		Quotas:        handler.NewQuotaHandler(quotaSvc),
		Offerts:       handler.NewOffertHandler(offertSvc),
		Subscriptions: handler.NewSubscriptionHandler(subSvc),
		Admin:         handler.NewAdminHandler(quotaSvc, subSvc),
	})

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env), slog.String("provider", gateway.Name()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", logger.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Err(err))
	}
}

func newGateway(p config.Provider, log *slog.Logger) (provider.Gateway, error) {
	switch p.Name {
	case "sandbox":
		return provider.NewSandbox(p.PublicBaseURL, p.SandboxSecret), nil
	case "mercadopago":
		if p.MPAccessToken == "" {
			return nil, errors.New("MP_ACCESS_TOKEN is required for mercadopago")
		}
		if p.MPWebhookSecret == "" {
			log.Warn("MP_WEBHOOK_SECRET is not set, mercadopago webhook signatures will not be verified")
		}
		mp, err := provider.NewMercadoPago(provider.MercadoPagoConfig{
			AccessToken:     p.MPAccessToken,
			WebhookSecret:   p.MPWebhookSecret,
			NotificationURL: p.MPNotificationURL,
			BackURL:         p.MPBackURL,
		})
		if err != nil {
			return nil, err
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", p.Name)
}
