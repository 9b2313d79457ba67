package http

import (
	stdhttp "net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// payloadValidator plugs go-playground/validator into echo's Bind/Validate
// cycle.
type payloadValidator struct {
	validate *validator.Validate
}

func newPayloadValidator() *payloadValidator {
	return &payloadValidator{validate: validator.New()}
}

func (v *payloadValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(stdhttp.StatusBadRequest, err.Error())
	}
	return nil
}
