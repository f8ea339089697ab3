// Package service holds the ledgers' business rules. Services depend on the
// store interfaces below; internal/repository provides the MySQL versions.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

type PaymentStore interface {
	Create(ctx context.Context, p model.Payment, events ...queue.Message) error
	GetByID(ctx context.Context, id string) (model.Payment, error)
	UpdateStatus(ctx context.Context, next model.Payment, from model.PaymentStatus, events ...queue.Message) error
	SetProviderRef(ctx context.Context, id, ref string, now time.Time) error
	List(ctx context.Context, f model.PaymentFilter) ([]model.Payment, int, error)
}

type QuotaStore interface {
	Create(ctx context.Context, q model.BookingQuota) error
	GetByID(ctx context.Context, id string) (model.BookingQuota, error)
	GetByPaymentID(ctx context.Context, paymentID string) (model.BookingQuota, error)
	ListByUser(ctx context.Context, userID string, validAt *time.Time) ([]model.BookingQuota, error)
}

type BookingStore interface {
	GetByID(ctx context.Context, id string) (model.Booking, error)
	List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
	UpdateStatus(ctx context.Context, next model.Booking, from model.BookingStatus, events ...queue.Message) error
}

// LedgerStore moves a quota and a booking in one transaction. Both methods
// return repository.ErrStale when a conditional update loses its race.
type LedgerStore interface {
	ConsumeForBooking(ctx context.Context, next model.BookingQuota, expectedRemaining int, b model.Booking, ev queue.Message) error
	RefundForCancellation(ctx context.Context, next model.Booking, fromStatus model.BookingStatus, quota *model.BookingQuota, expectedRemaining int, ev queue.Message) error
}

type OffertStore interface {
	Create(ctx context.Context, o model.TrainerOffert) error
	GetByID(ctx context.Context, id string) (model.TrainerOffert, error)
	Update(ctx context.Context, o model.TrainerOffert) error
	ListByTrainer(ctx context.Context, trainerID string, activeOnly bool) ([]model.TrainerOffert, error)
}

type SubscriptionStore interface {
	Create(ctx context.Context, s model.TrainerSubscription, events ...queue.Message) error
	GetByID(ctx context.Context, id string) (model.TrainerSubscription, error)
	GetByPaymentID(ctx context.Context, paymentID string) (model.TrainerSubscription, error)
	ListByUser(ctx context.Context, userID string, activeAt *time.Time) ([]model.TrainerSubscription, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.TrainerSubscription, error)
	UpdateStatus(ctx context.Context, next model.TrainerSubscription, from model.SubscriptionStatus, events ...queue.Message) error
}
