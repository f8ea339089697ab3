// Package outbox moves committed events from the outbox table to the broker.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/metrics"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

type Store interface {
	FetchPending(ctx context.Context, limit int) ([]queue.Message, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Relay publishes outbox rows in creation order. A row is marked published
// only after the broker accepted it, so a crash in between republishes it.
type Relay struct {
	store     Store
	pub       Publisher
	batchSize int
	interval  time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewRelay(store Store, pub Publisher, batchSize int, interval time.Duration, log *slog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{store: store, pub: pub, batchSize: batchSize, interval: interval, log: log, now: time.Now}
}

// Flush publishes one batch and returns how many rows went out. It stops
// at the first publish failure so later events never overtake it.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	msgs, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	metrics.OutboxPending.Set(float64(len(msgs)))

	sent := 0
	for _, m := range msgs {
		if err := r.pub.Publish(ctx, m); err != nil {
			if markErr := r.store.MarkFailed(ctx, m.ID, err); markErr != nil {
				r.log.Warn("outbox: mark failed", slog.String("event_id", m.ID), logger.Err(markErr))
			}
			return sent, err
		}
		if err := r.store.MarkPublished(ctx, m.ID, r.now()); err != nil {
			return sent, err
		}
		sent++
		metrics.OutboxPending.Set(float64(len(msgs) - sent))
	}
	return sent, nil
}

// Run flushes on every tick until ctx is cancelled. A full batch is
// followed immediately by another flush.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Error("outbox: flush failed", logger.Err(err))
				break
			}
			if n < r.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
