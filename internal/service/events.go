package service

import (
	"errors"
	"time"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
	"github.com/iliyamo/fitness-entitlements/internal/repository"
)

func paymentCreatedEvent(p model.Payment, now time.Time) (queue.Message, error) {
	return queue.NewMessage(queue.PatternPaymentCreated, queue.PaymentCreatedEvent{
		PaymentID: p.ID,
		UserID:    p.UserID,
		GymID:     p.GymID,
		Amount:    p.Amount.StringFixed(2),
		Currency:  p.Currency,
		Provider:  p.Provider,
		Purpose:   string(p.Purpose()),
		Metadata:  p.Metadata.Clone(),
	}, now)
}

func paymentStatusEvent(p model.Payment, now time.Time) (queue.Message, error) {
	return queue.NewMessage(queue.PatternPaymentStatusChanged, queue.PaymentStatusChangedEvent{
		PaymentID:   p.ID,
		UserID:      p.UserID,
		GymID:       p.GymID,
		Status:      string(p.Status),
		ProviderRef: p.ProviderRef,
		Purpose:     string(p.Purpose()),
		Metadata:    p.Metadata.Clone(),
	}, now)
}

func bookingEvent(pattern string, b model.Booking, remaining *int, now time.Time) (queue.Message, error) {
	return queue.NewMessage(pattern, queue.BookingEvent{
		BookingID: b.ID,
		UserID:    b.UserID,
		TrainerID: b.TrainerID,
		GymID:     b.GymID,
		QuotaID:   b.QuotaID,
		Date:      b.Date,
		Status:    string(b.Status),
		Remaining: remaining,
	}, now)
}

func subscriptionEndedEvent(pattern string, s model.TrainerSubscription, now time.Time) (queue.Message, error) {
	return queue.NewMessage(pattern, queue.SubscriptionEndedEvent{
		SubscriptionID: s.ID,
		UserID:         s.UserID,
		OffertID:       s.OffertID,
		Status:         string(s.Status),
		At:             now.UTC(),
	}, now)
}

// notFoundAs maps repository.ErrNotFound to a model NotFound error with msg.
func notFoundAs(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewError(model.ErrNotFound, "", msg)
	}
	return err
}

func alreadyProvisioned(what, paymentID string) error {
	return model.NewError(model.ErrInvalidState, model.CodeAlreadyProvisioned,
		what+" already provisioned for payment "+paymentID)
}

func unauthorized(msg string) error {
	return model.NewError(model.ErrUnauthorized, "", msg)
}

func invalidInput(msg string) error {
	return model.NewError(model.ErrInvalidState, model.CodeInvalidInput, msg)
}

func concurrentUpdate(what string) error {
	return model.NewError(model.ErrConflict, model.CodeConcurrentUpdate, what+" was modified concurrently, try again")
}
