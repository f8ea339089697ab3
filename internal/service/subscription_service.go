package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/metrics"
	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
	"github.com/iliyamo/fitness-entitlements/internal/repository"
)

// SubscriptionService provisions trainer subscriptions from payments.
type SubscriptionService struct {
	subs    SubscriptionStore
	offerts OffertStore
	log     *slog.Logger
	now     func() time.Time
}

func NewSubscriptionService(subs SubscriptionStore, offerts OffertStore, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{subs: subs, offerts: offerts, log: log, now: time.Now}
}

// CreateFromPayment starts a subscription to offertID and emits
// subscription.created in the same transaction.
func (s *SubscriptionService) CreateFromPayment(ctx context.Context, userID, offertID, paymentID string) (model.TrainerSubscription, error) {
	if _, err := s.subs.GetByPaymentID(ctx, paymentID); err == nil {
		return model.TrainerSubscription{}, alreadyProvisioned("subscription", paymentID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.TrainerSubscription{}, err
	}

	o, err := s.offerts.GetByID(ctx, offertID)
	if err != nil {
		return model.TrainerSubscription{}, notFoundAs(err, "trainer offert not found")
	}
	if !o.IsActive {
		return model.TrainerSubscription{}, model.NewError(model.ErrInvalidState, model.CodeOffertInactive, "trainer offert is not active")
	}

	now := s.now().UTC()
	sub := model.NewTrainerSubscription(userID, o.ID, paymentID, o.DurationInDays, now)
	ev, err := queue.NewMessage(queue.PatternSubscriptionCreated, queue.SubscriptionCreatedEvent{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		TrainerID:      o.TrainerID,
		OffertID:       o.ID,
		PaymentID:      paymentID,
		BookingQuota:   o.IncludedQuota(),
		ValidFrom:      sub.ValidFrom,
		ValidUntil:     sub.ValidUntil,
	}, now)
	if err != nil {
		return model.TrainerSubscription{}, err
	}
	if err := s.subs.Create(ctx, sub, ev); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.TrainerSubscription{}, alreadyProvisioned("subscription", paymentID)
		}
		return model.TrainerSubscription{}, err
	}
	metrics.RecordSubscription(string(model.SubscriptionActive), 1)
	logger.FromContextOr(ctx, s.log).Info("subscription created",
		slog.String("subscription_id", sub.ID), slog.String("payment_id", paymentID), slog.String("offert_id", o.ID))
	return sub, nil
}

func (s *SubscriptionService) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]model.TrainerSubscription, error) {
	if !activeOnly {
		return s.subs.ListByUser(ctx, userID, nil)
	}
	now := s.now().UTC()
	return s.subs.ListByUser(ctx, userID, &now)
}

// Cancel ends an active subscription early.
func (s *SubscriptionService) Cancel(ctx context.Context, id string, actor model.Actor) (model.TrainerSubscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return model.TrainerSubscription{}, notFoundAs(err, "subscription not found")
	}
	if !actor.Owns(sub.UserID) {
		return model.TrainerSubscription{}, unauthorized("subscription belongs to another user")
	}
	next, err := sub.Cancel()
	if err != nil {
		return model.TrainerSubscription{}, err
	}
	now := s.now().UTC()
	ev, err := subscriptionEndedEvent(queue.PatternSubscriptionCancelled, next, now)
	if err != nil {
		return model.TrainerSubscription{}, err
	}
	if err := s.subs.UpdateStatus(ctx, next, sub.Status, ev); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return model.TrainerSubscription{}, concurrentUpdate("subscription")
		}
		return model.TrainerSubscription{}, err
	}
	metrics.RecordSubscription(string(model.SubscriptionCancelled), 1)
	logger.FromContextOr(ctx, s.log).Info("subscription cancelled", slog.String("subscription_id", id))
	return next, nil
}

// ExpireDue marks up to limit overdue active subscriptions expired and
// returns how many it moved.
func (s *SubscriptionService) ExpireDue(ctx context.Context, limit int) (int, error) {
	now := s.now().UTC()
	due, err := s.subs.ListDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, sub := range due {
		next, err := sub.Expire()
		if err != nil {
			continue
		}
		ev, err := subscriptionEndedEvent(queue.PatternSubscriptionExpired, next, now)
		if err != nil {
			return expired, err
		}
		if err := s.subs.UpdateStatus(ctx, next, sub.Status, ev); err != nil {
			if errors.Is(err, repository.ErrStale) {
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		metrics.RecordSubscription(string(model.SubscriptionExpired), expired)
		s.log.Info("subscriptions expired", slog.Int("count", expired))
	}
	return expired, nil
}
