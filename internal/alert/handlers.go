package alert

import (
	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/auth"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/validate"

	"github.com/gofiber/fiber/v2"
)

type AlertRequest struct {
	AlertType string   `json:"alert_type" validate:"required"`
	Message   string   `json:"message" validate:"max=500"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

func RegisterRoutes(r fiber.Router, d *Dispatcher, dir ride.Directory, authMiddleware fiber.Handler) {
	r.Post("/rides/:ride_id/alert", authMiddleware, func(c *fiber.Ctx) error {
		var req AlertRequest
		if err := validate.Body(c, &req); err != nil {
			return apperr.Write(c, err)
		}
		rideID := c.Params("ride_id")
		ev, err := d.Send(c.Context(), rideID, auth.UserID(c), Request{
			Type:      req.AlertType,
			Message:   req.Message,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
		})
		if err != nil {
			return apperr.Write(c, err)
		}

		body := fiber.Map{"status": "success", "message": "Alert sent to all riders", "activity": ev}
		if views, err := activity.Decorate(c.Context(), dir, rideID, []activity.Event{ev}); err == nil {
			body["activity"] = views[0]
		}
		return c.Status(fiber.StatusCreated).JSON(body)
	})
}
