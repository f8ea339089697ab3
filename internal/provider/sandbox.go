package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/fitness-entitlements/internal/model"
)

// SignatureHeader carries the hex HMAC-SHA256 of the sandbox webhook body.
const SignatureHeader = "X-Signature"

// Sandbox is a provider with no external calls. Its checkout URL points at
// the public base URL and its webhooks are signed with a shared secret.
type Sandbox struct {
	baseURL string
	secret  []byte
}

func NewSandbox(baseURL, secret string) *Sandbox {
	return &Sandbox{baseURL: strings.TrimRight(baseURL, "/"), secret: []byte(secret)}
}

func (s *Sandbox) Name() string { return "sandbox" }

func (s *Sandbox) CreatePaymentIntent(_ context.Context, amount decimal.Decimal, currency, paymentID string) (Intent, error) {
	if !amount.IsPositive() {
		return Intent{}, fmt.Errorf("sandbox: amount must be positive")
	}
	ref := "sbx_" + uuid.NewString()
	return Intent{
		PaymentURL: fmt.Sprintf("%s/sandbox/checkout/%s?ref=%s&amount=%s&currency=%s", s.baseURL, paymentID, ref, amount.StringFixed(2), currency),
		Reference:  ref,
	}, nil
}

type sandboxNotification struct {
	PaymentID   string         `json:"paymentId"`
	Status      string         `json:"status"`
	ProviderRef string         `json:"providerRef"`
	Metadata    model.Metadata `json:"metadata"`
}

// ParseWebhook verifies the signature over the raw body before decoding it.
func (s *Sandbox) ParseWebhook(_ context.Context, req WebhookRequest) (WebhookEvent, error) {
	if !s.Verify(req.Body, req.Header.Get(SignatureHeader)) {
		return WebhookEvent{}, ErrBadSignature
	}
	var n sandboxNotification
	if err := json.Unmarshal(req.Body, &n); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	status := model.PaymentStatus(n.Status)
	if n.PaymentID == "" || !status.Valid() {
		return WebhookEvent{}, fmt.Errorf("%w: paymentId and a known status are required", ErrMalformed)
	}
	if status == model.PaymentPending {
		return WebhookEvent{}, ErrIgnored
	}
	return WebhookEvent{PaymentID: n.PaymentID, Status: status, ProviderRef: n.ProviderRef, Metadata: n.Metadata}, nil
}

func (s *Sandbox) CancelPayment(context.Context, string) error { return nil }

// Sign returns the signature header value for body.
func (s *Sandbox) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares in constant time. An unconfigured secret rejects all.
func (s *Sandbox) Verify(body []byte, signature string) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(body)), []byte(strings.ToLower(signature)))
}
