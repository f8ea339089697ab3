package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Validator plugs go-playground/validator into echo's c.Validate.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

func (cv *Validator) Validate(i any) error { return cv.v.Struct(i) }

// bind decodes the request into dst and validates it. The returned error
// is a message fit for a 400 response.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := c.Validate(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New(describe(verrs[0]))
		}
		return err
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "len":
		return fe.Field() + " must be " + fe.Param() + " characters long"
	case "gt", "gte", "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "uuid":
		return fe.Field() + " must be a UUID"
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	}
	return fe.Field() + " is invalid"
}
