package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/metrics"
	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
	"github.com/iliyamo/fitness-entitlements/internal/repository"
)

type CreateBookingInput struct {
	UserID    string
	TrainerID *string
	GymID     string
	Date      time.Time
	QuotaID   string
}

// CASPolicy bounds the retries after a lost compare-and-swap.
type CASPolicy struct {
	Attempts uint
	Delay    time.Duration
}

// BookingService consumes and refunds quota units as bookings come and go.
type BookingService struct {
	quotas   QuotaStore
	bookings BookingStore
	ledger   LedgerStore
	cas      CASPolicy
	log      *slog.Logger
	now      func() time.Time
}

func NewBookingService(quotas QuotaStore, bookings BookingStore, ledger LedgerStore, cas CASPolicy, log *slog.Logger) *BookingService {
	if cas.Attempts == 0 {
		cas.Attempts = 5
	}
	return &BookingService{quotas: quotas, bookings: bookings, ledger: ledger, cas: cas, log: log, now: time.Now}
}

// withCAS re-runs fn with a fresh read while it loses races, up to the
// policy's attempts. Exhaustion becomes a Conflict.
func withCAS[T any](ctx context.Context, p CASPolicy, what string, fn func() (T, error)) (T, error) {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(p.Attempts),
		retry.Delay(p.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, repository.ErrStale) }),
		retry.OnRetry(func(uint, error) { metrics.QuotaCASRetriesTotal.Inc() }),
	}
	if p.Delay > 0 {
		opts = append(opts, retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)), retry.MaxJitter(p.Delay))
	}
	out, err := retry.DoWithData(fn, opts...)
	if errors.Is(err, repository.ErrStale) {
		return out, concurrentUpdate(what)
	}
	return out, err
}

// Create books one session against a quota.
func (s *BookingService) Create(ctx context.Context, in CreateBookingInput) (model.Booking, error) {
	b, err := withCAS(ctx, s.cas, "booking quota", func() (model.Booking, error) {
		q, err := s.quotas.GetByID(ctx, in.QuotaID)
		if err != nil {
			return model.Booking{}, notFoundAs(err, "booking quota not found")
		}
		now := s.now().UTC()
		if err := q.CheckUsable(now); err != nil {
			return model.Booking{}, err
		}
		if q.UserID != in.UserID {
			return model.Booking{}, unauthorized("booking quota belongs to another user")
		}
		next, err := q.Consume(now)
		if err != nil {
			return model.Booking{}, err
		}
		b := model.NewBooking(in.UserID, in.TrainerID, in.GymID, in.Date, q.ID, now)
		remaining := next.Remaining
		ev, err := bookingEvent(queue.PatternBookingCreated, b, &remaining, now)
		if err != nil {
			return model.Booking{}, err
		}
		if err := s.ledger.ConsumeForBooking(ctx, next, q.Remaining, b, ev); err != nil {
			return model.Booking{}, err
		}
		return b, nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	metrics.RecordBooking(string(b.Status))
	logger.FromContextOr(ctx, s.log).Info("booking created",
		slog.String("booking_id", b.ID), slog.String("quota_id", b.QuotaID), slog.String("user_id", b.UserID))
	return b, nil
}

// Cancel cancels a pending or confirmed booking and refunds its unit. A
// quota that no longer exists is skipped; a quota that is already full
// aborts the cancellation.
func (s *BookingService) Cancel(ctx context.Context, bookingID string, actor model.Actor) (model.Booking, error) {
	b, err := withCAS(ctx, s.cas, "booking", func() (model.Booking, error) {
		b, err := s.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return model.Booking{}, notFoundAs(err, "booking not found")
		}
		if !actor.Owns(b.UserID) {
			return model.Booking{}, unauthorized("booking belongs to another user")
		}
		next, err := b.Cancel()
		if err != nil {
			return model.Booking{}, err
		}

		var (
			refunded *model.BookingQuota
			expected int
			left     *int
		)
		q, err := s.quotas.GetByID(ctx, b.QuotaID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			logger.FromContextOr(ctx, s.log).Warn("quota missing, cancelling without refund",
				slog.String("booking_id", b.ID), slog.String("quota_id", b.QuotaID))
		case err != nil:
			return model.Booking{}, err
		default:
			nq, err := q.Refund()
			if err != nil {
				return model.Booking{}, err
			}
			refunded, expected = &nq, q.Remaining
			r := nq.Remaining
			left = &r
		}

		now := s.now().UTC()
		ev, err := bookingEvent(queue.PatternBookingCancelled, next, left, now)
		if err != nil {
			return model.Booking{}, err
		}
		if err := s.ledger.RefundForCancellation(ctx, next, b.Status, refunded, expected, ev); err != nil {
			return model.Booking{}, err
		}
		return next, nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	metrics.RecordBooking(string(b.Status))
	logger.FromContextOr(ctx, s.log).Info("booking cancelled", slog.String("booking_id", b.ID))
	return b, nil
}

// Confirm is done by the booking's trainer or an admin.
func (s *BookingService) Confirm(ctx context.Context, id string, actor model.Actor) (model.Booking, error) {
	return s.advance(ctx, id, actor, queue.PatternBookingConfirmed, model.Booking.Confirm)
}

// Complete is done by the booking's trainer or an admin.
func (s *BookingService) Complete(ctx context.Context, id string, actor model.Actor) (model.Booking, error) {
	return s.advance(ctx, id, actor, queue.PatternBookingCompleted, model.Booking.Complete)
}

func (s *BookingService) advance(ctx context.Context, id string, actor model.Actor, pattern string, step func(model.Booking) (model.Booking, error)) (model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return model.Booking{}, notFoundAs(err, "booking not found")
	}
	if !actor.IsAdmin() && !b.IsTrainer(actor.UserID) {
		return model.Booking{}, unauthorized("only the booking's trainer can do this")
	}
	next, err := step(b)
	if err != nil {
		return model.Booking{}, err
	}
	ev, err := bookingEvent(pattern, next, nil, s.now().UTC())
	if err != nil {
		return model.Booking{}, err
	}
	if err := s.bookings.UpdateStatus(ctx, next, b.Status, ev); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return model.Booking{}, concurrentUpdate("booking")
		}
		return model.Booking{}, err
	}
	metrics.RecordBooking(string(next.Status))
	logger.FromContextOr(ctx, s.log).Info("booking "+string(next.Status), slog.String("booking_id", id))
	return next, nil
}

// Get returns a booking to its user, its trainer or an admin.
func (s *BookingService) Get(ctx context.Context, id string, actor model.Actor) (model.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return model.Booking{}, notFoundAs(err, "booking not found")
	}
	if !actor.Owns(b.UserID) && !b.IsTrainer(actor.UserID) {
		return model.Booking{}, unauthorized("booking belongs to another user")
	}
	return b, nil
}

func (s *BookingService) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	if f.Empty() {
		return nil, invalidInput("one of userId, trainerId or gymId is required")
	}
	return s.bookings.List(ctx, f)
}
