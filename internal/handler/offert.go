package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/fitness-entitlements/internal/middleware"
	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/service"
)

type OffertAPI interface {
	Create(ctx context.Context, trainerID string, in service.OffertInput) (model.TrainerOffert, error)
	Get(ctx context.Context, id string) (model.TrainerOffert, error)
	List(ctx context.Context, trainerID string, activeOnly bool) ([]model.TrainerOffert, error)
	Update(ctx context.Context, id, trainerID string, patch model.OffertPatch) (model.TrainerOffert, error)
	Activate(ctx context.Context, id, trainerID string) (model.TrainerOffert, error)
	Deactivate(ctx context.Context, id, trainerID string) (model.TrainerOffert, error)
}

// OffertHandler serves the trainer offer catalog.
type OffertHandler struct {
	offerts OffertAPI
}

func NewOffertHandler(offerts OffertAPI) *OffertHandler { return &OffertHandler{offerts: offerts} }

type createOffertRequest struct {
	Title            string          `json:"title" validate:"required"`
	Description      string          `json:"description"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency" validate:"required,len=3"`
	DurationInDays   int             `json:"durationInDays" validate:"required,gte=1"`
	IncludesBookings bool            `json:"includesBookings"`
	BookingQuota     *int            `json:"bookingQuota" validate:"omitempty,gte=1"`
}

type updateOffertRequest struct {
	Title            *string          `json:"title" validate:"omitempty,min=1"`
	Description      *string          `json:"description"`
	Price            *decimal.Decimal `json:"price"`
	Currency         *string          `json:"currency" validate:"omitempty,len=3"`
	DurationInDays   *int             `json:"durationInDays" validate:"omitempty,gte=1"`
	IncludesBookings *bool            `json:"includesBookings"`
	BookingQuota     *int             `json:"bookingQuota" validate:"omitempty,gte=1"`
}

func (h *OffertHandler) Create(c echo.Context) error {
	var req createOffertRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	o, err := h.offerts.Create(c.Request().Context(), middleware.ActorFrom(c).UserID, service.OffertInput{
		Title:            req.Title,
		Description:      req.Description,
		Price:            req.Price,
		Currency:         req.Currency,
		DurationInDays:   req.DurationInDays,
		IncludesBookings: req.IncludesBookings,
		BookingQuota:     req.BookingQuota,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, o)
}

// List handles GET /v1/trainer-offerts?trainerId=&active=. The answer depends
// on the query alone, so the route can sit behind the response cache.
func (h *OffertHandler) List(c echo.Context) error {
	list, err := h.offerts.List(c.Request().Context(), c.QueryParam("trainerId"), queryBool(c, "active"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *OffertHandler) Get(c echo.Context) error {
	o, err := h.offerts.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OffertHandler) Update(c echo.Context) error {
	var req updateOffertRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	o, err := h.offerts.Update(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c).UserID, model.OffertPatch{
		Title:            req.Title,
		Description:      req.Description,
		Price:            req.Price,
		Currency:         req.Currency,
		DurationInDays:   req.DurationInDays,
		IncludesBookings: req.IncludesBookings,
		BookingQuota:     req.BookingQuota,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OffertHandler) Activate(c echo.Context) error {
	return h.toggle(c, h.offerts.Activate)
}

func (h *OffertHandler) Deactivate(c echo.Context) error {
	return h.toggle(c, h.offerts.Deactivate)
}

func (h *OffertHandler) toggle(c echo.Context, op func(context.Context, string, string) (model.TrainerOffert, error)) error {
	o, err := op(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c).UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, o)
}
