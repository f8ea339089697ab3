// Package listener holds the worker-side reactions to ledger events. Each
// handler is idempotent by payment id, so redelivery is harmless.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/queue"
)

// Queue names owned by the worker.
const (
	QueuePaymentStatus     = "entitlements.payment-status"
	QueueSubscriptionQuota = "entitlements.subscription-quota"
	QueueBookingAudit      = "audit.bookings"
)

type QuotaGenerator interface {
	Generate(ctx context.Context, userID, paymentID string, total int, validFrom, validUntil time.Time) (model.BookingQuota, error)
}

type SubscriptionCreator interface {
	CreateFromPayment(ctx context.Context, userID, offertID, paymentID string) (model.TrainerSubscription, error)
}

// decode unmarshals a delivery body. A body that does not parse will never
// parse, so it skips the remaining attempts.
func decode(d queue.Delivery, v any) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return retry.Unrecoverable(fmt.Errorf("decode %s: %w", d.Pattern, err))
	}
	return nil
}

// settle turns a provisioning result into the handler outcome:
// already_provisioned is success, domain rejections are permanent and
// anything else is worth another attempt.
func settle(err error) error {
	switch {
	case err == nil, model.HasCode(err, model.CodeAlreadyProvisioned):
		return nil
	case errors.Is(err, model.ErrInvalidState), errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrUnauthorized):
		return retry.Unrecoverable(err)
	}
	return err
}

func permanent(format string, args ...any) error {
	return retry.Unrecoverable(fmt.Errorf(format, args...))
}

func duplicate(log *slog.Logger, err error, attrs ...any) {
	if model.HasCode(err, model.CodeAlreadyProvisioned) {
		log.Info("already provisioned, acknowledging", attrs...)
	}
}
