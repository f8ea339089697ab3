package listener

import (
	"context"
	"log/slog"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

// SubscriptionQuota grants the booking units bundled with a trainer offer.
// The quota is keyed by the subscription's payment, like a direct purchase.
type SubscriptionQuota struct {
	quotas QuotaGenerator
	log    *slog.Logger
}

func NewSubscriptionQuota(quotas QuotaGenerator, log *slog.Logger) *SubscriptionQuota {
	return &SubscriptionQuota{quotas: quotas, log: log}
}

func (l *SubscriptionQuota) Binding() queue.Binding {
	return queue.Binding{
		Queue:    QueueSubscriptionQuota,
		Patterns: []string{queue.PatternSubscriptionCreated},
		Handler:  l.Handle,
	}
}

func (l *SubscriptionQuota) Handle(ctx context.Context, d queue.Delivery) error {
	var ev queue.SubscriptionCreatedEvent
	if err := decode(d, &ev); err != nil {
		return err
	}
	if ev.BookingQuota == nil || *ev.BookingQuota <= 0 {
		return nil
	}
	if ev.PaymentID == "" {
		return permanent("subscription %s: paymentId missing", ev.SubscriptionID)
	}
	log := logger.FromContextOr(ctx, l.log).With(slog.String("subscription_id", ev.SubscriptionID), slog.String("payment_id", ev.PaymentID))

	_, err := l.quotas.Generate(ctx, ev.UserID, ev.PaymentID, *ev.BookingQuota, ev.ValidFrom, ev.ValidUntil)
	duplicate(log, err)
	return settle(err)
}
