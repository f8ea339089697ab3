package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TrainerOffert is a subscription product published by a trainer.
type TrainerOffert struct {
	ID               string          `db:"id" json:"id"`
	TrainerID        string          `db:"trainer_id" json:"trainerId"`
	Title            string          `db:"title" json:"title"`
	Description      string          `db:"description" json:"description"`
	Price            decimal.Decimal `db:"price" json:"price"`
	Currency         string          `db:"currency" json:"currency"`
	DurationInDays   int             `db:"duration_in_days" json:"durationInDays"`
	IncludesBookings bool            `db:"includes_bookings" json:"includesBookings"`
	BookingQuota     *int            `db:"booking_quota" json:"bookingQuota,omitempty"`
	IsActive         bool            `db:"is_active" json:"isActive"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
}

// OffertPatch holds the optional fields of an update.
type OffertPatch struct {
	Title            *string
	Description      *string
	Price            *decimal.Decimal
	Currency         *string
	DurationInDays   *int
	IncludesBookings *bool
	BookingQuota     *int
}

// NewTrainerOffert returns an active offer after checking its invariants.
func NewTrainerOffert(trainerID, title, description string, price decimal.Decimal, currency string,
	durationInDays int, includesBookings bool, bookingQuota *int, now time.Time) (TrainerOffert, error) {
	o := TrainerOffert{
		ID:               uuid.NewString(),
		TrainerID:        trainerID,
		Title:            strings.TrimSpace(title),
		Description:      description,
		Price:            price,
		Currency:         strings.ToUpper(currency),
		DurationInDays:   durationInDays,
		IncludesBookings: includesBookings,
		BookingQuota:     bookingQuota,
		IsActive:         true,
		CreatedAt:        now.UTC(),
	}
	if err := o.validate(); err != nil {
		return TrainerOffert{}, err
	}
	return o, nil
}

func (o TrainerOffert) validate() error {
	switch {
	case o.Title == "":
		return NewError(ErrInvalidState, CodeInvalidInput, "title is required")
	case !o.Price.IsPositive():
		return NewError(ErrInvalidState, CodeInvalidInput, "price must be positive")
	case len(o.Currency) != 3:
		return NewError(ErrInvalidState, CodeInvalidInput, "currency must be a 3 letter code")
	case o.DurationInDays < 1:
		return NewError(ErrInvalidState, CodeInvalidInput, "duration must be at least one day")
	case o.IncludesBookings && (o.BookingQuota == nil || *o.BookingQuota < 1):
		return NewError(ErrInvalidState, CodeInvalidInput, "bookingQuota is required when bookings are included")
	}
	return nil
}

// Update applies the non-nil fields of p.
func (o TrainerOffert) Update(p OffertPatch) (TrainerOffert, error) {
	next := o
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Price != nil {
		next.Price = *p.Price
	}
	if p.Currency != nil {
		next.Currency = strings.ToUpper(*p.Currency)
	}
	if p.DurationInDays != nil {
		next.DurationInDays = *p.DurationInDays
	}
	if p.IncludesBookings != nil {
		next.IncludesBookings = *p.IncludesBookings
	}
	if p.BookingQuota != nil {
		q := *p.BookingQuota
		next.BookingQuota = &q
	}
	if !next.IncludesBookings {
		next.BookingQuota = nil
	}
	if err := next.validate(); err != nil {
		return o, err
	}
	return next, nil
}

func (o TrainerOffert) Activate() TrainerOffert {
	o.IsActive = true
	return o
}

func (o TrainerOffert) Deactivate() TrainerOffert {
	o.IsActive = false
	return o
}

// IncludedQuota returns the number of booking units a subscription to o
// grants, or nil.
func (o TrainerOffert) IncludedQuota() *int {
	if !o.IncludesBookings || o.BookingQuota == nil || *o.BookingQuota <= 0 {
		return nil
	}
	q := *o.BookingQuota
	return &q
}
