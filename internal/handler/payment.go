package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/middleware"
	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/provider"
	"github.com/iliyamo/fitness-entitlements/internal/service"
)

type PaymentAPI interface {
	Create(ctx context.Context, in service.CreatePaymentInput) (service.Checkout, error)
	HandleWebhook(ctx context.Context, in service.WebhookInput) error
	Cancel(ctx context.Context, paymentID, userID, reason string) (model.Payment, error)
	Get(ctx context.Context, id string, actor model.Actor) (model.Payment, error)
	List(ctx context.Context, f model.PaymentFilter) (service.PaymentPage, error)
}

// PaymentHandler serves /v1/payments and the provider webhook.
type PaymentHandler struct {
	payments PaymentAPI
	gateway  provider.Gateway
}

func NewPaymentHandler(payments PaymentAPI, gateway provider.Gateway) *PaymentHandler {
	return &PaymentHandler{payments: payments, gateway: gateway}
}

type createPaymentRequest struct {
	GymID    string          `json:"gymId" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3"`
	Provider string          `json:"provider"`
	Metadata model.Metadata  `json:"metadata" validate:"required"`
}

// Create handles POST /v1/payments and answers 201 with the checkout URL.
func (h *PaymentHandler) Create(c echo.Context) error {
	var req createPaymentRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	out, err := h.payments.Create(c.Request().Context(), service.CreatePaymentInput{
		UserID:   middleware.ActorFrom(c).UserID,
		GymID:    req.GymID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Provider: req.Provider,
		Metadata: req.Metadata,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// List handles GET /v1/payments. Admins may look at another user's payments
// with ?userId=.
func (h *PaymentHandler) List(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	f := model.PaymentFilter{
		UserID: actor.UserID,
		Status: model.PaymentStatus(c.QueryParam("status")),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	}
	if actor.IsAdmin() {
		f.UserID = c.QueryParam("userId")
	}
	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		return badRequest(c, "from must be an RFC 3339 timestamp")
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		return badRequest(c, "to must be an RFC 3339 timestamp")
	}
	page, err := h.payments.List(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *PaymentHandler) Get(c echo.Context) error {
	p, err := h.payments.Get(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type cancelPaymentRequest struct {
	Reason string `json:"reason"`
}

func (h *PaymentHandler) Cancel(c echo.Context) error {
	var req cancelPaymentRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return badRequest(c, err.Error())
		}
	}
	p, err := h.payments.Cancel(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c).UserID, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Webhook handles POST /v1/payments/webhook. Verification is the gateway's
// job; notifications it cannot act on are still answered 200 so the
// provider stops retrying them.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	ev, err := h.gateway.ParseWebhook(req.Context(), provider.WebhookRequest{
		Header: req.Header,
		Query:  c.QueryParams(),
		Body:   body,
	})
	switch {
	case errors.Is(err, provider.ErrIgnored):
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	case errors.Is(err, provider.ErrBadSignature):
		logger.FromContext(req.Context()).Warn("webhook signature rejected", "provider", h.gateway.Name())
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	case errors.Is(err, provider.ErrMalformed):
		return badRequest(c, "malformed notification")
	case err != nil:
		return respondError(c, model.Wrap(model.ErrUpstreamUnavailable, model.CodeProviderError, "payment provider unavailable", err))
	}

	err = h.payments.HandleWebhook(req.Context(), service.WebhookInput{
		PaymentID:   ev.PaymentID,
		Status:      ev.Status,
		ProviderRef: ev.ProviderRef,
		Metadata:    ev.Metadata,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
