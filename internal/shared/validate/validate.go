// Package validate decodes and checks request bodies.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var v = validator.New()

// Struct checks s against its validate tags. Coordinate failures map to
// invalid_coordinates, everything else to invalid_payload.
func Struct(s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.InvalidPayload.WithMessage(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	coords := false
	for _, fe := range verrs {
		switch fe.Tag() {
		case "latitude", "longitude":
			coords = true
		}
		if fe.Tag() == "required" && isCoordinateField(fe.Field()) {
			coords = true
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	if coords {
		return apperr.InvalidCoordinates.WithMessage(strings.Join(msgs, "; "))
	}
	return apperr.InvalidPayload.WithMessage(strings.Join(msgs, "; "))
}

// Body parses the request body into dst and validates it.
func Body(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.InvalidPayload.WithMessage(err.Error())
	}
	return Struct(dst)
}

func isCoordinateField(name string) bool {
	switch strings.ToLower(name) {
	case "latitude", "longitude":
		return true
	}
	return false
}
