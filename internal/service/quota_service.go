package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/metrics"
	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/repository"
)

// QuotaService provisions booking quotas, at most one per payment.
type QuotaService struct {
	quotas QuotaStore
	log    *slog.Logger
	now    func() time.Time
}

func NewQuotaService(quotas QuotaStore, log *slog.Logger) *QuotaService {
	return &QuotaService{quotas: quotas, log: log, now: time.Now}
}

// Generate creates a full quota for paymentID. A second call for the same
// payment fails with code already_provisioned, whether the first one is
// seen by the lookup or only by the unique key.
func (s *QuotaService) Generate(ctx context.Context, userID, paymentID string, total int, validFrom, validUntil time.Time) (model.BookingQuota, error) {
	if _, err := s.quotas.GetByPaymentID(ctx, paymentID); err == nil {
		return model.BookingQuota{}, alreadyProvisioned("booking quota", paymentID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return model.BookingQuota{}, err
	}

	q, err := model.NewBookingQuota(userID, total, validFrom, validUntil, paymentID, s.now())
	if err != nil {
		return model.BookingQuota{}, err
	}
	if err := s.quotas.Create(ctx, q); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.BookingQuota{}, alreadyProvisioned("booking quota", paymentID)
		}
		return model.BookingQuota{}, err
	}
	metrics.QuotasProvisionedTotal.Inc()
	logger.FromContextOr(ctx, s.log).Info("booking quota provisioned",
		slog.String("quota_id", q.ID), slog.String("payment_id", paymentID),
		slog.String("user_id", userID), slog.Int("total", total))
	return q, nil
}

// ListByUser returns the user's quotas; validOnly keeps those usable now.
func (s *QuotaService) ListByUser(ctx context.Context, userID string, validOnly bool) ([]model.BookingQuota, error) {
	if !validOnly {
		return s.quotas.ListByUser(ctx, userID, nil)
	}
	now := s.now().UTC()
	return s.quotas.ListByUser(ctx, userID, &now)
}

func (s *QuotaService) Get(ctx context.Context, id string, actor model.Actor) (model.BookingQuota, error) {
	q, err := s.quotas.GetByID(ctx, id)
	if err != nil {
		return model.BookingQuota{}, notFoundAs(err, "booking quota not found")
	}
	if !actor.Owns(q.UserID) {
		return model.BookingQuota{}, unauthorized("booking quota belongs to another user")
	}
	return q, nil
}
