package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitness-entitlements/internal/logger"
	"github.com/iliyamo/fitness-entitlements/internal/model"
)

// statusOf maps an error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes {"error","code"} for err. Unknown errors are logged
// and hidden behind a generic message.
func respondError(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request().Context()).Error("request failed",
			"route", c.Path(), logger.Err(err))
		return c.JSON(status, echo.Map{"error": "internal error", "code": "internal"})
	}
	var e *model.Error
	code := ""
	msg := err.Error()
	if errors.As(err, &e) {
		code, msg = e.Code, e.Message
	}
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": model.CodeInvalidInput})
}
