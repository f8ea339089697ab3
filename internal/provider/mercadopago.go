package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/fitness-entitlements/internal/model"
)

type preferenceAPI interface {
	Create(ctx context.Context, request preference.Request) (*preference.Response, error)
}

type paymentAPI interface {
	Get(ctx context.Context, id int) (*payment.Response, error)
	Cancel(ctx context.Context, id int) (*payment.Response, error)
}

// MercadoPagoConfig holds the Checkout Pro settings.
type MercadoPagoConfig struct {
	AccessToken     string
	WebhookSecret   string
	NotificationURL string
	BackURL         string
}

// MercadoPago creates Checkout Pro preferences and resolves payment
// notifications through the payments API. The preference id is the first
// provider reference; the notification replaces it with the payment id.
type MercadoPago struct {
	cfg         MercadoPagoConfig
	preferences preferenceAPI
	payments    paymentAPI
}

func NewMercadoPago(c MercadoPagoConfig) (*MercadoPago, error) {
	cfg, err := config.New(c.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}
	return &MercadoPago{cfg: c, preferences: preference.NewClient(cfg), payments: payment.NewClient(cfg)}, nil
}

func (m *MercadoPago) Name() string { return "mercadopago" }

func (m *MercadoPago) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency, paymentID string) (Intent, error) {
	req := preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:       "Fitness entitlement",
				Description: "Payment " + paymentID,
				Quantity:    1,
				UnitPrice:   amount.InexactFloat64(),
				CurrencyID:  strings.ToUpper(currency),
			},
		},
		ExternalReference: paymentID,
		NotificationURL:   m.cfg.NotificationURL,
	}
	if m.cfg.BackURL != "" {
		req.AutoReturn = "approved"
		req.BackURLs = &preference.BackURLsRequest{
			Success: m.cfg.BackURL + "?status=success",
			Failure: m.cfg.BackURL + "?status=failure",
			Pending: m.cfg.BackURL + "?status=pending",
		}
	}
	res, err := m.preferences.Create(ctx, req)
	if err != nil {
		return Intent{}, fmt.Errorf("create preference: %w", err)
	}
	return Intent{PaymentURL: res.InitPoint, Reference: res.ID}, nil
}

type mpNotification struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ParseWebhook accepts "payment" notifications only. When a secret is
// configured the x-signature header must match the id/request-id/ts manifest.
func (m *MercadoPago) ParseWebhook(ctx context.Context, req WebhookRequest) (WebhookEvent, error) {
	var n mpNotification
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &n); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if n.Type == "" {
		n.Type = req.Query.Get("type")
	}
	if id := req.Query.Get("data.id"); id != "" {
		n.Data.ID = id
	}
	if n.Type != "payment" || n.Data.ID == "" {
		return WebhookEvent{}, ErrIgnored
	}
	if m.cfg.WebhookSecret != "" &&
		!validMPSignature(req.Header.Get("x-signature"), req.Header.Get("x-request-id"), n.Data.ID, m.cfg.WebhookSecret) {
		return WebhookEvent{}, ErrBadSignature
	}

	id, err := strconv.Atoi(n.Data.ID)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: payment id %q", ErrMalformed, n.Data.ID)
	}
	p, err := m.payments.Get(ctx, id)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("get payment %d: %w", id, err)
	}
	status, ok := mpStatus(p.Status)
	if !ok {
		return WebhookEvent{}, ErrIgnored
	}
	if p.ExternalReference == "" {
		return WebhookEvent{}, ErrIgnored
	}
	return WebhookEvent{
		PaymentID:   p.ExternalReference,
		Status:      status,
		ProviderRef: strconv.Itoa(p.ID),
		Metadata:    model.Metadata{"providerStatus": p.Status, "providerStatusDetail": p.StatusDetail},
	}, nil
}

// CancelPayment cancels a provider payment. A preference reference means the
// user never paid, so there is nothing to cancel upstream.
func (m *MercadoPago) CancelPayment(ctx context.Context, reference string) error {
	id, err := strconv.Atoi(reference)
	if err != nil {
		return nil
	}
	if _, err := m.payments.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel payment %d: %w", id, err)
	}
	return nil
}

func mpStatus(s string) (model.PaymentStatus, bool) {
	switch s {
	case "approved":
		return model.PaymentCompleted, true
	case "rejected":
		return model.PaymentFailed, true
	case "cancelled", "refunded", "charged_back":
		return model.PaymentCancelled, true
	}
	return "", false
}

var (
	tsPattern = regexp.MustCompile(`ts=([^,]+)`)
	v1Pattern = regexp.MustCompile(`v1=([^,]+)`)
)

func validMPSignature(header, requestID, dataID, secret string) bool {
	if header == "" || secret == "" {
		return false
	}
	ts, hash := "", ""
	if m := tsPattern.FindStringSubmatch(header); len(m) > 1 {
		ts = strings.TrimSpace(m[1])
	}
	if m := v1Pattern.FindStringSubmatch(header); len(m) > 1 {
		hash = strings.TrimSpace(m[1])
	}
	if ts == "" || hash == "" {
		return false
	}
	return hmac.Equal([]byte(hash), []byte(mpSign(mpManifest(dataID, requestID, ts), secret)))
}

// mpManifest is id:<data.id>;request-id:<x-request-id>;ts:<ts>; with empty
// parts omitted.
func mpManifest(dataID, requestID, ts string) string {
	var parts []string
	if dataID != "" {
		parts = append(parts, "id:"+strings.ToLower(dataID))
	}
	if requestID != "" {
		parts = append(parts, "request-id:"+requestID)
	}
	if ts != "" {
		parts = append(parts, "ts:"+ts)
	}
	return strings.Join(parts, ";") + ";"
}

func mpSign(manifest, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}
