package model

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// TrainerSubscription grants a user access to a trainer offer for a fixed
// window. There is at most one per payment.
type TrainerSubscription struct {
	ID         string             `db:"id" json:"id"`
	UserID     string             `db:"user_id" json:"userId"`
	OffertID   string             `db:"offert_id" json:"offertId"`
	ValidFrom  time.Time          `db:"valid_from" json:"validFrom"`
	ValidUntil time.Time          `db:"valid_until" json:"validUntil"`
	Status     SubscriptionStatus `db:"status" json:"status"`
	PaymentID  string             `db:"payment_id" json:"paymentId"`
	CreatedAt  time.Time          `db:"created_at" json:"createdAt"`
}

// NewTrainerSubscription starts an active subscription at now lasting days.
func NewTrainerSubscription(userID, offertID, paymentID string, days int, now time.Time) TrainerSubscription {
	now = now.UTC()
	return TrainerSubscription{
		ID:         uuid.NewString(),
		UserID:     userID,
		OffertID:   offertID,
		ValidFrom:  now,
		ValidUntil: now.AddDate(0, 0, days),
		Status:     SubscriptionActive,
		PaymentID:  paymentID,
		CreatedAt:  now,
	}
}

func (s TrainerSubscription) leave(to SubscriptionStatus) (TrainerSubscription, error) {
	if s.Status != SubscriptionActive {
		return s, NewError(ErrInvalidState, CodeInvalidTransition, "subscription is already "+string(s.Status))
	}
	s.Status = to
	return s, nil
}

func (s TrainerSubscription) Cancel() (TrainerSubscription, error) { return s.leave(SubscriptionCancelled) }

func (s TrainerSubscription) Expire() (TrainerSubscription, error) { return s.leave(SubscriptionExpired) }

// IsExpired is true once the status says so or the window has passed.
func (s TrainerSubscription) IsExpired(now time.Time) bool {
	return s.Status == SubscriptionExpired || now.After(s.ValidUntil)
}
