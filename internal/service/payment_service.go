package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/metrics"
	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/provider"
	"github.com/iliyamo/fitness-entitlements/internal/repository"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// maxAmount is the first value the DECIMAL(12,2) amount column cannot hold.
var maxAmount = decimal.New(1, 10)

type CreatePaymentInput struct {
	UserID   string
	GymID    string
	Amount   decimal.Decimal
	Currency string
	Provider string
	Metadata model.Metadata
}

// Checkout is a persisted pending payment plus where to send the user.
type Checkout struct {
	Payment    model.Payment `json:"payment"`
	PaymentURL string        `json:"paymentUrl"`
}

type WebhookInput struct {
	PaymentID   string
	Status      model.PaymentStatus
	ProviderRef string
	Metadata    model.Metadata
}

type PaymentPage struct {
	Items []model.Payment `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// PaymentService owns the payment status machine.
type PaymentService struct {
	payments PaymentStore
	offerts  OffertStore
	gateway  provider.Gateway
	log      *slog.Logger
	now      func() time.Time
}

func NewPaymentService(payments PaymentStore, offerts OffertStore, gateway provider.Gateway, log *slog.Logger) *PaymentService {
	return &PaymentService{payments: payments, offerts: offerts, gateway: gateway, log: log, now: time.Now}
}

// Create persists a pending payment and asks the provider for a checkout. A
// provider failure leaves the payment failed, never pending.
func (s *PaymentService) Create(ctx context.Context, in CreatePaymentInput) (Checkout, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if !currencyCode.MatchString(in.Currency) {
		return Checkout{}, invalidInput("currency must be a 3 letter ISO 4217 code")
	}
	if !in.Amount.IsPositive() {
		return Checkout{}, invalidInput("amount must be positive")
	}
	if in.Amount.Exponent() < -2 && !in.Amount.Equal(in.Amount.Truncate(2)) {
		return Checkout{}, invalidInput("amount must have at most 2 decimal places")
	}
	if in.Amount.GreaterThanOrEqual(maxAmount) {
		return Checkout{}, invalidInput("amount is too large")
	}
	if in.Provider == "" {
		in.Provider = s.gateway.Name()
	}
	if in.Provider != s.gateway.Name() {
		return Checkout{}, invalidInput("unsupported payment provider " + in.Provider)
	}
	if err := s.validatePurpose(ctx, in); err != nil {
		return Checkout{}, err
	}

	now := s.now().UTC()
	p := model.Payment{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		GymID:     in.GymID,
		Amount:    in.Amount,
		Currency:  in.Currency,
		Provider:  in.Provider,
		Status:    model.PaymentPending,
		Metadata:  in.Metadata.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev, err := paymentCreatedEvent(p, now)
	if err != nil {
		return Checkout{}, err
	}
	if err := s.payments.Create(ctx, p, ev); err != nil {
		return Checkout{}, err
	}
	log := logger.FromContextOr(ctx, s.log).With(slog.String("payment_id", p.ID))
	log.Info("payment created", slog.String("purpose", string(p.Purpose())), slog.String("amount", p.Amount.String()))

	intent, err := s.gateway.CreatePaymentIntent(ctx, p.Amount, p.Currency, p.ID)
	if err != nil {
		log.Error("payment intent failed", logger.Err(err))
		s.markFailed(ctx, p, err)
		return Checkout{}, model.Wrap(model.ErrUpstreamUnavailable, model.CodeProviderError, "payment provider unavailable", err)
	}

	if err := s.payments.SetProviderRef(ctx, p.ID, intent.Reference, s.now().UTC()); err != nil {
		if !errors.Is(err, repository.ErrStale) {
			return Checkout{}, err
		}
		log.Warn("payment left pending before provider ref was stored")
	}
	p = p.WithProviderRef(intent.Reference)
	return Checkout{Payment: p, PaymentURL: intent.PaymentURL}, nil
}

func (s *PaymentService) markFailed(ctx context.Context, p model.Payment, cause error) {
	now := s.now().UTC()
	failed, err := p.Transition(model.PaymentFailed, now)
	if err != nil {
		return
	}
	failed.Metadata[model.MetaFailureReason] = cause.Error()
	ev, err := paymentStatusEvent(failed, now)
	if err == nil {
		err = s.payments.UpdateStatus(ctx, failed, model.PaymentPending, ev)
	}
	if err != nil {
		logger.FromContextOr(ctx, s.log).Error("could not mark payment failed", slog.String("payment_id", p.ID), logger.Err(err))
		return
	}
	metrics.RecordPaymentTransition(string(model.PaymentFailed))
}

func (s *PaymentService) validatePurpose(ctx context.Context, in CreatePaymentInput) error {
	purpose, _ := in.Metadata.String(model.MetaPurpose)
	switch model.PaymentPurpose(purpose) {
	case model.PurposeBookingQuota:
		if n, ok := in.Metadata.Int(model.MetaQuotaTotal); !ok || n <= 0 {
			return invalidInput("metadata.quotaTotal must be a positive integer")
		}
		if n, ok := in.Metadata.Int(model.MetaQuotaValidDays); !ok || n <= 0 {
			return invalidInput("metadata.quotaValidDays must be a positive integer")
		}
		return nil
	case model.PurposeTrainerSubscription:
		offertID, ok := in.Metadata.String(model.MetaOffertID)
		if !ok {
			return invalidInput("metadata.offertId is required")
		}
		o, err := s.offerts.GetByID(ctx, offertID)
		if err != nil {
			return notFoundAs(err, "trainer offert not found")
		}
		if !o.IsActive {
			return model.NewError(model.ErrInvalidState, model.CodeOffertInactive, "trainer offert is not active")
		}
		if !o.Price.Equal(in.Amount) || o.Currency != in.Currency {
			return invalidInput("amount and currency must match the offert price")
		}
		return nil
	}
	return invalidInput("metadata.purpose must be booking_quota or trainer_subscription")
}

// HandleWebhook applies a provider status report. Repeats and reports about
// terminal payments are accepted and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, in WebhookInput) error {
	p, err := s.payments.GetByID(ctx, in.PaymentID)
	if err != nil {
		return notFoundAs(err, "payment not found")
	}
	log := logger.FromContextOr(ctx, s.log).With(slog.String("payment_id", p.ID), slog.String("status", string(in.Status)))
	if in.Status == p.Status {
		log.Debug("duplicate webhook ignored")
		return nil
	}
	if p.Status.Terminal() {
		log.Info("webhook for terminal payment ignored", slog.String("current", string(p.Status)))
		return nil
	}

	now := s.now().UTC()
	next, err := p.Transition(in.Status, now)
	if err != nil {
		return err
	}
	next = next.WithProviderRef(in.ProviderRef).MergeMetadata(in.Metadata)
	ev, err := paymentStatusEvent(next, now)
	if err != nil {
		return err
	}
	if err := s.payments.UpdateStatus(ctx, next, model.PaymentPending, ev); err != nil {
		if errors.Is(err, repository.ErrStale) {
			log.Info("payment moved concurrently, webhook ignored")
			return nil
		}
		return err
	}
	metrics.RecordPaymentTransition(string(next.Status))
	log.Info("payment status changed")
	return nil
}

// Cancel cancels a pending payment on behalf of its owner.
func (s *PaymentService) Cancel(ctx context.Context, paymentID, userID, reason string) (model.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return model.Payment{}, notFoundAs(err, "payment not found")
	}
	if p.UserID != userID {
		return model.Payment{}, unauthorized("payment belongs to another user")
	}
	if p.Status != model.PaymentPending {
		return model.Payment{}, model.NewError(model.ErrInvalidState, model.CodeInvalidTransition,
			"only pending payments can be cancelled")
	}
	if p.ProviderRef != nil && *p.ProviderRef != "" {
		if err := s.gateway.CancelPayment(ctx, *p.ProviderRef); err != nil {
			return model.Payment{}, model.Wrap(model.ErrUpstreamUnavailable, model.CodeProviderError, "payment provider unavailable", err)
		}
	}

	now := s.now().UTC()
	next, err := p.Transition(model.PaymentCancelled, now)
	if err != nil {
		return model.Payment{}, err
	}
	if reason != "" {
		next.Metadata[model.MetaCancellationReason] = reason
	}
	ev, err := paymentStatusEvent(next, now)
	if err != nil {
		return model.Payment{}, err
	}
	if err := s.payments.UpdateStatus(ctx, next, model.PaymentPending, ev); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return model.Payment{}, model.NewError(model.ErrInvalidState, model.CodeInvalidTransition,
				"payment is no longer pending")
		}
		return model.Payment{}, err
	}
	metrics.RecordPaymentTransition(string(next.Status))
	logger.FromContextOr(ctx, s.log).Info("payment cancelled", slog.String("payment_id", p.ID))
	return next, nil
}

// Get returns a payment to its owner or an admin.
func (s *PaymentService) Get(ctx context.Context, id string, actor model.Actor) (model.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return model.Payment{}, notFoundAs(err, "payment not found")
	}
	if !actor.Owns(p.UserID) {
		return model.Payment{}, unauthorized("payment belongs to another user")
	}
	return p, nil
}

func (s *PaymentService) List(ctx context.Context, f model.PaymentFilter) (PaymentPage, error) {
	f = f.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return PaymentPage{}, invalidInput("unknown payment status " + string(f.Status))
	}
	items, total, err := s.payments.List(ctx, f)
	if err != nil {
		return PaymentPage{}, err
	}
	return PaymentPage{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}
