package live

import (
	"github.com/pwnchaurasia/WayFind-backend/internal/auth"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, agg *Aggregator, authMiddleware fiber.Handler) {
	r.Get("/rides/:ride_id/live", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := agg.Snapshot(c.Context(), c.Params("ride_id"), auth.UserID(c))
		if err != nil {
			return apperr.Write(c, err)
		}
		return c.JSON(fiber.Map{
			"status":             "success",
			"ride_status":        snap.RideStatus,
			"activities":         snap.Activities,
			"rider_locations":    snap.RiderLocations,
			"checkpoints":        snap.Checkpoints,
			"my_attendance":      snap.MyAttendance,
			"participants_count": snap.ParticipantsCount,
		})
	})
}
