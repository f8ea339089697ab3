package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitness-entitlements/internal/middleware"
	"github.com/iliyamo/fitness-entitlements/internal/model"
)

type QuotaAPI interface {
	ListByUser(ctx context.Context, userID string, validOnly bool) ([]model.BookingQuota, error)
	Get(ctx context.Context, id string, actor model.Actor) (model.BookingQuota, error)
}

type QuotaHandler struct {
	quotas QuotaAPI
}

func NewQuotaHandler(quotas QuotaAPI) *QuotaHandler { return &QuotaHandler{quotas: quotas} }

// List handles GET /v1/quotas?valid=true.
func (h *QuotaHandler) List(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	userID := actor.UserID
	if other := c.QueryParam("userId"); other != "" && actor.IsAdmin() {
		userID = other
	}
	list, err := h.quotas.ListByUser(c.Request().Context(), userID, queryBool(c, "valid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *QuotaHandler) Get(c echo.Context) error {
	q, err := h.quotas.Get(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}
