package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitness-entitlements/internal/middleware"
	"github.com/iliyamo/fitness-entitlements/internal/model"
	"github.com/iliyamo/fitness-entitlements/internal/service"
)

type BookingAPI interface {
	Create(ctx context.Context, in service.CreateBookingInput) (model.Booking, error)
	Cancel(ctx context.Context, bookingID string, actor model.Actor) (model.Booking, error)
	Confirm(ctx context.Context, id string, actor model.Actor) (model.Booking, error)
	Complete(ctx context.Context, id string, actor model.Actor) (model.Booking, error)
	Get(ctx context.Context, id string, actor model.Actor) (model.Booking, error)
	List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
}

type BookingHandler struct {
	bookings BookingAPI
}

func NewBookingHandler(bookings BookingAPI) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

type createBookingRequest struct {
	TrainerID *string   `json:"trainerId"`
	GymID     string    `json:"gymId" validate:"required"`
	Date      time.Time `json:"date" validate:"required"`
	QuotaID   string    `json:"quotaId" validate:"required"`
}

// Create handles POST /v1/bookings. The quota must belong to the caller.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createBookingRequest
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.TrainerID != nil && *req.TrainerID == "" {
		req.TrainerID = nil
	}
	b, err := h.bookings.Create(c.Request().Context(), service.CreateBookingInput{
		UserID:    middleware.ActorFrom(c).UserID,
		TrainerID: req.TrainerID,
		GymID:     req.GymID,
		Date:      req.Date,
		QuotaID:   req.QuotaID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// List handles GET /v1/bookings. Users only ever see their own bookings.
// Trainers see their own or a gym's and default to their own. Gym owners
// list by gym. Only admins filter by any dimension.
func (h *BookingHandler) List(c echo.Context) error {
	actor := middleware.ActorFrom(c)
	f := model.BookingFilter{
		UserID:    c.QueryParam("userId"),
		TrainerID: c.QueryParam("trainerId"),
		GymID:     c.QueryParam("gymId"),
	}
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleUser:
		f = model.BookingFilter{UserID: actor.UserID}
	case model.RoleTrainer:
		f.UserID = ""
		if f.TrainerID != actor.UserID {
			f.TrainerID = ""
		}
		if f.Empty() {
			f.TrainerID = actor.UserID
		}
	default:
		if f.GymID == "" {
			return badRequest(c, "gymId is required")
		}
		f = model.BookingFilter{GymID: f.GymID}
	}
	list, err := h.bookings.List(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *BookingHandler) Get(c echo.Context) error {
	return h.reply(c, http.StatusOK, h.bookings.Get)
}

func (h *BookingHandler) Cancel(c echo.Context) error {
	return h.reply(c, http.StatusOK, h.bookings.Cancel)
}

func (h *BookingHandler) Confirm(c echo.Context) error {
	return h.reply(c, http.StatusOK, h.bookings.Confirm)
}

func (h *BookingHandler) Complete(c echo.Context) error {
	return h.reply(c, http.StatusOK, h.bookings.Complete)
}

func (h *BookingHandler) reply(c echo.Context, status int, op func(context.Context, string, model.Actor) (model.Booking, error)) error {
	b, err := op(c.Request().Context(), c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status, b)
}
