package model

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the state of a Booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Booking is one session reserved against a quota unit.
//
// Transitions: pending -> confirmed|cancelled, confirmed -> completed|cancelled.
type Booking struct {
	ID        string        `db:"id" json:"id"`
	UserID    string        `db:"user_id" json:"userId"`
	TrainerID *string       `db:"trainer_id" json:"trainerId,omitempty"`
	GymID     string        `db:"gym_id" json:"gymId"`
	Date      time.Time     `db:"session_date" json:"date"`
	Status    BookingStatus `db:"status" json:"status"`
	QuotaID   string        `db:"quota_id" json:"quotaId"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
}

// NewBooking returns a pending booking.
func NewBooking(userID string, trainerID *string, gymID string, date time.Time, quotaID string, now time.Time) Booking {
	return Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		TrainerID: trainerID,
		GymID:     gymID,
		Date:      date.UTC(),
		Status:    BookingPending,
		QuotaID:   quotaID,
		CreatedAt: now.UTC(),
	}
}

func (b Booking) move(to BookingStatus, allowed ...BookingStatus) (Booking, error) {
	for _, s := range allowed {
		if b.Status == s {
			b.Status = to
			return b, nil
		}
	}
	return b, NewError(ErrInvalidState, CodeInvalidTransition,
		"cannot move booking from "+string(b.Status)+" to "+string(to))
}

// Cancel is allowed from pending or confirmed.
func (b Booking) Cancel() (Booking, error) {
	return b.move(BookingCancelled, BookingPending, BookingConfirmed)
}

// Confirm is allowed from pending.
func (b Booking) Confirm() (Booking, error) { return b.move(BookingConfirmed, BookingPending) }

// Complete is allowed from confirmed.
func (b Booking) Complete() (Booking, error) { return b.move(BookingCompleted, BookingConfirmed) }

// IsTrainer reports whether id is the booking's trainer.
func (b Booking) IsTrainer(id string) bool { return b.TrainerID != nil && *b.TrainerID == id }

// BookingFilter selects bookings by exactly one owner dimension.
type BookingFilter struct {
	UserID    string
	TrainerID string
	GymID     string
}

// Empty reports whether no dimension is set.
func (f BookingFilter) Empty() bool { return f.UserID == "" && f.TrainerID == "" && f.GymID == "" }
