package location

import (
	"github.com/pwnchaurasia/WayFind-backend/internal/auth"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/validate"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/rides/:ride_id/location", authMiddleware, func(c *fiber.Ctx) error {
		var req UpdateRequest
		if err := validate.Body(c, &req); err != nil {
			return apperr.Write(c, err)
		}
		res, err := svc.Update(c.Context(), c.Params("ride_id"), auth.UserID(c), req)
		if err != nil {
			return apperr.Write(c, err)
		}
		return c.JSON(res)
	})
}
