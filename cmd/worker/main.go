package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/fitness-entitlements/internal/config"
	"github.com/iliyamo/fitness-entitlements/internal/database"
	"github.com/iliyamo/fitness-entitlements/internal/listener"
	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/metrics"
	"github.com/iliyamo/fitness-entitlements/internal/outbox"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
	"github.com/iliyamo/fitness-entitlements/internal/repository"
	"github.com/iliyamo/fitness-entitlements/internal/service"
)

// The worker drains the outbox to RabbitMQ, runs the entitlement listeners
// and expires overdue subscriptions.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.Env).With(slog.String("process", "worker"))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.DSN(cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name))
	if err != nil {
		log.Error("database unavailable", logger.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	quotas := service.NewQuotaService(repository.NewQuotaRepo(db), log)
	offerts := repository.NewOffertRepo(db)
	subs := service.NewSubscriptionService(repository.NewSubscriptionRepo(db), offerts, log)

	pub := queue.NewPublisher(cfg.Broker.URL, cfg.Broker.Exchange, log)
	defer pub.Close()
	relay := outbox.NewRelay(repository.NewOutboxRepo(db), pub, cfg.Outbox.BatchSize, cfg.Outbox.PollInterval, log)

	consumer := queue.NewConsumer(queue.ConsumerConfig{
		URL:         cfg.Broker.URL,
		Exchange:    cfg.Broker.Exchange,
		Prefetch:    cfg.Listener.Prefetch,
		MaxAttempts: cfg.Listener.MaxAttempts,
		RetryDelay:  cfg.Listener.RetryDelay,
	}, log)
	consumer.Register(listener.NewPaymentCompleted(quotas, subs, log).Binding())
	consumer.Register(listener.NewSubscriptionQuota(quotas, log).Binding())
	consumer.Register(listener.NewBookingAudit(log).Binding())

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(name+" stopped", logger.Err(err))
				stop()
			}
		}()
	}
	run("outbox relay", relay.Run)
	run("consumer", consumer.Run)
	run("subscription sweeper", func(ctx context.Context) error {
		return sweep(ctx, subs, cfg.Sweeper.Interval, cfg.Sweeper.Batch, log)
	})
	go func() {
		log.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", logger.Err(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("workers did not stop in time")
	}
}

type expirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// sweep expires overdue subscriptions every interval. A full batch is
// followed immediately by another.
func sweep(ctx context.Context, subs expirer, interval time.Duration, batch int, log *slog.Logger) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		for {
			n, err := subs.ExpireDue(ctx, batch)
			if err != nil {
				log.Warn("subscription sweep failed", logger.Err(err))
				break
			}
			if n < batch {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
