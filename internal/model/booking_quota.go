package model

import (
	"time"

	"github.com/google/uuid"
)

// BookingQuota is a decrementing counter of bookable units bought by one
// payment. Consume and Refund return new values and leave the receiver
// untouched; the repository persists the new value conditioned on the
// Remaining that was read.
type BookingQuota struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"userId"`
	Total      int       `db:"total" json:"total"`
	Remaining  int       `db:"remaining" json:"remaining"`
	ValidFrom  time.Time `db:"valid_from" json:"validFrom"`
	ValidUntil time.Time `db:"valid_until" json:"validUntil"`
	PaymentID  string    `db:"payment_id" json:"paymentId"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// NewBookingQuota returns a full quota of total units.
func NewBookingQuota(userID string, total int, validFrom, validUntil time.Time, paymentID string, now time.Time) (BookingQuota, error) {
	if total <= 0 {
		return BookingQuota{}, NewError(ErrInvalidState, CodeInvalidInput, "quota total must be positive")
	}
	if !validUntil.After(validFrom) {
		return BookingQuota{}, NewError(ErrInvalidState, CodeInvalidInput, "quota validity window is empty")
	}
	return BookingQuota{
		ID:         uuid.NewString(),
		UserID:     userID,
		Total:      total,
		Remaining:  total,
		ValidFrom:  validFrom.UTC(),
		ValidUntil: validUntil.UTC(),
		PaymentID:  paymentID,
		CreatedAt:  now.UTC(),
	}, nil
}

// IsExpired reports whether now is past the validity window.
func (q BookingQuota) IsExpired(now time.Time) bool { return now.After(q.ValidUntil) }

// IsValid reports whether a unit can be consumed at now.
func (q BookingQuota) IsValid(now time.Time) bool {
	return !now.Before(q.ValidFrom) && !now.After(q.ValidUntil) && q.Remaining > 0
}

// CheckUsable explains why IsValid is false, or returns nil.
func (q BookingQuota) CheckUsable(now time.Time) error {
	switch {
	case q.Remaining <= 0:
		return NewError(ErrInvalidState, CodeQuotaExhausted, "no remaining quotas available")
	case q.IsExpired(now):
		return NewError(ErrInvalidState, CodeQuotaExpired, "quota has expired")
	case now.Before(q.ValidFrom):
		return NewError(ErrInvalidState, CodeQuotaNotStarted, "quota is not valid yet")
	}
	return nil
}

// Consume takes one unit.
func (q BookingQuota) Consume(now time.Time) (BookingQuota, error) {
	if q.Remaining <= 0 {
		return q, NewError(ErrInvalidState, CodeQuotaExhausted, "no remaining quotas available")
	}
	if q.IsExpired(now) {
		return q, NewError(ErrInvalidState, CodeQuotaExpired, "quota has expired")
	}
	next := q
	next.Remaining--
	return next, nil
}

// Refund gives one unit back. Expiry does not matter here: a refund corrects
// the ledger, it does not grant anything new.
func (q BookingQuota) Refund() (BookingQuota, error) {
	if q.Remaining >= q.Total {
		return q, NewError(ErrInvalidState, CodeQuotaFull, "cannot refund more quotas than the total")
	}
	next := q
	next.Remaining++
	return next, nil
}
