package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitness-entitlements/internal/middleware"
	"github.com/iliyamo/fitness-entitlements/internal/model"
)

type SubscriptionAPI interface {
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]model.TrainerSubscription, error)
	Cancel(ctx context.Context, id string, actor model.Actor) (model.TrainerSubscription, error)
}

type SubscriptionHandler struct {
	subs SubscriptionAPI
}

func NewSubscriptionHandler(subs SubscriptionAPI) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// List handles GET /v1/subscriptions?active=true for the caller.
func (h *SubscriptionHandler) List(c echo.Context) error {
	list, err := h.subs.ListByUser(c.Request().Context(), middleware.ActorFrom(c).UserID, queryBool(c, "active"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *SubscriptionHandler) Cancel(c echo.Context) error {
	s, err := h.subs.Cancel(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}
