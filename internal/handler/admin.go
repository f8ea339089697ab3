package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitness-entitlements/internal/model"
)

type QuotaProvisioner interface {
	Generate(ctx context.Context, userID, paymentID string, total int, validFrom, validUntil time.Time) (model.BookingQuota, error)
}

type SubscriptionProvisioner interface {
	CreateFromPayment(ctx context.Context, userID, offertID, paymentID string) (model.TrainerSubscription, error)
}

// AdminHandler provisions entitlements by hand, for support cases where a
// payment was settled outside the webhook flow. The per-payment uniqueness
// still applies.
type AdminHandler struct {
	quotas QuotaProvisioner
	subs   SubscriptionProvisioner
}

func NewAdminHandler(quotas QuotaProvisioner, subs SubscriptionProvisioner) *AdminHandler {
	return &AdminHandler{quotas: quotas, subs: subs}
}

type generateQuotaRequest struct {
	UserID     string    `json:"userId" validate:"required"`
	PaymentID  string    `json:"paymentId" validate:"required"`
	Total      int       `json:"total" validate:"required,gte=1"`
	ValidFrom  time.Time `json:"validFrom" validate:"required"`
	ValidUntil time.Time `json:"validUntil" validate:"required"`
}

func (h *AdminHandler) GenerateQuota(c echo.Context) error {
	var req generateQuotaRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	q, err := h.quotas.Generate(c.Request().Context(), req.UserID, req.PaymentID, req.Total, req.ValidFrom, req.ValidUntil)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, q)
}

type createSubscriptionRequest struct {
	UserID    string `json:"userId" validate:"required"`
	OffertID  string `json:"offertId" validate:"required"`
	PaymentID string `json:"paymentId" validate:"required"`
}

func (h *AdminHandler) CreateSubscription(c echo.Context) error {
	var req createSubscriptionRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	s, err := h.subs.CreateFromPayment(c.Request().Context(), req.UserID, req.OffertID, req.PaymentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}
