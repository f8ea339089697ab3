package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the state of a Payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is accepted from s.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentCancelled
}

// PaymentPurpose tells listeners which entitlement a completed payment buys.
type PaymentPurpose string

const (
	PurposeBookingQuota        PaymentPurpose = "booking_quota"
	PurposeTrainerSubscription PaymentPurpose = "trainer_subscription"
)

// Reserved metadata keys. They are set at creation time and never
// overwritten by later merges.
const (
	MetaPurpose            = "purpose"
	MetaQuotaTotal         = "quotaTotal"
	MetaQuotaValidDays     = "quotaValidDays"
	MetaOffertID           = "offertId"
	MetaCancellationReason = "cancellationReason"
	MetaFailureReason      = "failureReason"
)

var reservedMeta = map[string]bool{
	MetaPurpose:        true,
	MetaQuotaTotal:     true,
	MetaQuotaValidDays: true,
	MetaOffertID:       true,
}

// Payment is a financial record. It is created pending and mutated only by
// provider confirmation or user cancellation; it is never deleted.
type Payment struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"userId"`
	GymID       string          `db:"gym_id" json:"gymId"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Currency    string          `db:"currency" json:"currency"`
	Provider    string          `db:"provider" json:"provider"`
	Status      PaymentStatus   `db:"status" json:"status"`
	ProviderRef *string         `db:"provider_ref" json:"providerRef,omitempty"`
	Metadata    Metadata        `db:"metadata" json:"metadata"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// Purpose returns the entitlement kind recorded in the metadata.
func (p Payment) Purpose() PaymentPurpose {
	s, _ := p.Metadata.String(MetaPurpose)
	return PaymentPurpose(s)
}

// Transition returns a copy of p moved to status to. Only pending payments
// move, and never back to pending.
func (p Payment) Transition(to PaymentStatus, now time.Time) (Payment, error) {
	if !to.Valid() || to == PaymentPending {
		return p, NewError(ErrInvalidState, CodeInvalidTransition, "unsupported payment status "+string(to))
	}
	if p.Status != PaymentPending {
		return p, NewError(ErrInvalidState, CodeInvalidTransition,
			"payment is already "+string(p.Status))
	}
	next := p
	next.Status = to
	next.Metadata = p.Metadata.Clone()
	next.UpdatedAt = now
	return next, nil
}

// WithProviderRef returns a copy of p carrying ref. An empty ref keeps the
// current one.
func (p Payment) WithProviderRef(ref string) Payment {
	if ref == "" {
		return p
	}
	p.ProviderRef = &ref
	return p
}

// MergeMetadata returns a copy of p with extra merged into its metadata.
// Reserved keys in extra are dropped.
func (p Payment) MergeMetadata(extra Metadata) Payment {
	if len(extra) == 0 {
		return p
	}
	merged := p.Metadata.Clone()
	for k, v := range extra {
		if reservedMeta[k] {
			continue
		}
		merged[k] = v
	}
	p.Metadata = merged
	return p
}

// PaymentFilter narrows ListPayments.
type PaymentFilter struct {
	UserID string
	Status PaymentStatus
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// Normalize applies paging defaults.
func (f PaymentFilter) Normalize() PaymentFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	return f
}

// Offset is the number of rows to skip for the current page.
func (f PaymentFilter) Offset() int { return (f.Page - 1) * f.Limit }
