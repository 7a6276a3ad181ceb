package attendance

import (
	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/auth"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/validate"

	"github.com/gofiber/fiber/v2"
)

type CheckInRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Accuracy  *float64 `json:"accuracy" validate:"omitempty,gte=0"`
}

func RegisterRoutes(r fiber.Router, tracker *Tracker, dir ride.Directory, authMiddleware fiber.Handler) {
	r.Post("/rides/:ride_id/checkin", authMiddleware, func(c *fiber.Ctx) error {
		var req CheckInRequest
		if err := validate.Body(c, &req); err != nil {
			return apperr.Write(c, err)
		}
		rideID := c.Params("ride_id")
		res, err := tracker.TryCheckIn(c.Context(), rideID, auth.UserID(c), *req.Latitude, *req.Longitude)
		if err != nil {
			return apperr.Write(c, err)
		}

		body := fiber.Map{"status": res.Status, "message": res.Message}
		if res.Checkpoint != nil {
			body["checkpoint"] = res.Checkpoint
		}
		if res.Nearest != nil {
			body["nearest_checkpoint"] = res.Nearest
		}
		if res.CheckedInAt != nil {
			body["checked_in_at"] = res.CheckedInAt
		}
		if res.Activity != nil {
			// the check-in is committed; fall back to the bare event
			if views, err := activity.Decorate(c.Context(), dir, rideID, []activity.Event{*res.Activity}); err == nil {
				body["activity"] = views[0]
			} else {
				body["activity"] = res.Activity
			}
		}
		if res.Status == OutcomeCheckedIn {
			return c.Status(fiber.StatusCreated).JSON(body)
		}
		return c.JSON(body)
	})
}
