// Package provider adapts external payment providers to the service's
// payment flow.
package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/fitness-entitlements/internal/model"
)

var (
	// ErrIgnored marks a notification that carries nothing to act on, such
	// as a provider event about a merchant order.
	ErrIgnored = errors.New("notification ignored")
	// ErrBadSignature is returned when a webhook fails verification.
	ErrBadSignature = errors.New("invalid webhook signature")
	// ErrMalformed is returned when a webhook body cannot be decoded.
	ErrMalformed = errors.New("malformed webhook")
)

// Intent is what the provider returns for a new payment.
type Intent struct {
	PaymentURL string
	Reference  string
}

// WebhookRequest is the raw inbound notification.
type WebhookRequest struct {
	Header http.Header
	Query  url.Values
	Body   []byte
}

// WebhookEvent is a verified status report for one of our payments.
type WebhookEvent struct {
	PaymentID   string
	Status      model.PaymentStatus
	ProviderRef string
	Metadata    model.Metadata
}

// Gateway is the provider port used by PaymentService and the webhook handler.
type Gateway interface {
	Name() string
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, paymentID string) (Intent, error)
	ParseWebhook(ctx context.Context, req WebhookRequest) (WebhookEvent, error)
	CancelPayment(ctx context.Context, reference string) error
}
