package listener

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

// PaymentCompleted provisions the entitlement a completed payment bought.
type PaymentCompleted struct {
	quotas QuotaGenerator
	subs   SubscriptionCreator
	log    *slog.Logger
	now    func() time.Time
}

func NewPaymentCompleted(quotas QuotaGenerator, subs SubscriptionCreator, log *slog.Logger) *PaymentCompleted {
	return &PaymentCompleted{quotas: quotas, subs: subs, log: log, now: time.Now}
}

func (l *PaymentCompleted) Binding() queue.Binding {
	return queue.Binding{
		Queue:    QueuePaymentStatus,
		Patterns: []string{queue.PatternPaymentStatusChanged},
		Handler:  l.Handle,
	}
}

func (l *PaymentCompleted) Handle(ctx context.Context, d queue.Delivery) error {
	var ev queue.PaymentStatusChangedEvent
	if err := decode(d, &ev); err != nil {
		return err
	}
	if ev.Status != string(model.PaymentCompleted) {
		return nil
	}
	log := logger.FromContextOr(ctx, l.log).With(slog.String("payment_id", ev.PaymentID), slog.String("user_id", ev.UserID))
	meta := model.Metadata(ev.Metadata)

	var err error
	switch model.PaymentPurpose(ev.Purpose) {
	case model.PurposeBookingQuota:
		total, ok := meta.Int(model.MetaQuotaTotal)
		days, okDays := meta.Int(model.MetaQuotaValidDays)
		if !ok || !okDays || total <= 0 || days <= 0 {
			return permanent("payment %s: quota metadata missing or invalid", ev.PaymentID)
		}
		now := l.now().UTC()
		_, err = l.quotas.Generate(ctx, ev.UserID, ev.PaymentID, total, now, now.AddDate(0, 0, days))
	case model.PurposeTrainerSubscription:
		offertID, ok := meta.String(model.MetaOffertID)
		if !ok {
			return permanent("payment %s: offertId missing", ev.PaymentID)
		}
		_, err = l.subs.CreateFromPayment(ctx, ev.UserID, offertID, ev.PaymentID)
	default:
		return permanent("payment %s: unknown purpose %q", ev.PaymentID, ev.Purpose)
	}
	duplicate(log, err, slog.String("purpose", ev.Purpose))
	if err = settle(err); err != nil {
		return err
	}
	log.Debug("payment entitlement handled", slog.String("purpose", ev.Purpose))
	return nil
}
