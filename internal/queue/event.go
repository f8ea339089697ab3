// Package queue defines the events exchanged over the message broker and the
// RabbitMQ publisher and consumer that carry them.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Patterns double as routing keys on the events exchange.
const (
	PatternPaymentCreated        = "payment.created"
	PatternPaymentStatusChanged  = "payment.status.changed"
	PatternSubscriptionCreated   = "subscription.created"
	PatternSubscriptionCancelled = "subscription.cancelled"
	PatternSubscriptionExpired   = "subscription.expired"
	PatternBookingCreated        = "booking.created"
	PatternBookingConfirmed      = "booking.confirmed"
	PatternBookingCancelled      = "booking.cancelled"
	PatternBookingCompleted      = "booking.completed"

	// PatternBookingAny binds every booking event.
	PatternBookingAny = "booking.*"
)

// Message is an event ready to be published. ID becomes the AMQP MessageId.
type Message struct {
	ID        string
	Pattern   string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// NewMessage marshals payload under pattern.
func NewMessage(pattern string, payload any, now time.Time) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s: %w", pattern, err)
	}
	return Message{ID: uuid.NewString(), Pattern: pattern, Payload: body, CreatedAt: now.UTC()}, nil
}

// PaymentCreatedEvent is emitted when a pending payment is persisted.
type PaymentCreatedEvent struct {
	PaymentID string         `json:"paymentId"`
	UserID    string         `json:"userId"`
	GymID     string         `json:"gymId"`
	Amount    string         `json:"amount"`
	Currency  string         `json:"currency"`
	Provider  string         `json:"provider"`
	Purpose   string         `json:"purpose"`
	Metadata  map[string]any `json:"metadata"`
}

// PaymentStatusChangedEvent is emitted on every accepted status transition.
type PaymentStatusChangedEvent struct {
	PaymentID   string         `json:"paymentId"`
	UserID      string         `json:"userId"`
	GymID       string         `json:"gymId"`
	Status      string         `json:"status"`
	ProviderRef *string        `json:"providerRef"`
	Purpose     string         `json:"purpose"`
	Metadata    map[string]any `json:"metadata"`
}

// SubscriptionCreatedEvent is emitted when a trainer subscription starts.
// BookingQuota is nil unless the offer includes bookings.
type SubscriptionCreatedEvent struct {
	SubscriptionID string    `json:"subscriptionId"`
	UserID         string    `json:"userId"`
	TrainerID      string    `json:"trainerId"`
	OffertID       string    `json:"offertId"`
	PaymentID      string    `json:"paymentId"`
	BookingQuota   *int      `json:"bookingQuota"`
	ValidFrom      time.Time `json:"validFrom"`
	ValidUntil     time.Time `json:"validUntil"`
}

// SubscriptionEndedEvent covers subscription.cancelled and subscription.expired.
type SubscriptionEndedEvent struct {
	SubscriptionID string    `json:"subscriptionId"`
	UserID         string    `json:"userId"`
	OffertID       string    `json:"offertId"`
	Status         string    `json:"status"`
	At             time.Time `json:"at"`
}

// BookingEvent is the payload of every booking.* pattern.
type BookingEvent struct {
	BookingID string    `json:"bookingId"`
	UserID    string    `json:"userId"`
	TrainerID *string   `json:"trainerId"`
	GymID     string    `json:"gymId"`
	QuotaID   string    `json:"quotaId"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	Remaining *int      `json:"remaining,omitempty"`
}
