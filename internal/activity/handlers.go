package activity

import (
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/auth"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/validate"

	"github.com/gofiber/fiber/v2"
)

// AppendRequest is the body collaborators post to record lifecycle and lead
// events.
type AppendRequest struct {
	ActivityType string         `json:"activity_type" validate:"required"`
	UserID       string         `json:"user_id"`
	Message      string         `json:"message" validate:"max=500"`
	Latitude     *float64       `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64       `json:"longitude" validate:"omitempty,longitude"`
	CheckpointID string         `json:"checkpoint_id"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    *time.Time     `json:"created_at"`
}

// ToEvent converts the request, rejecting types this engine owns.
func (r AppendRequest) ToEvent(rideID string) (Event, error) {
	t := ParseType(r.ActivityType)
	if !t.FromCollaborator() {
		return Event{}, apperr.InvalidActivityType.WithMessage("collaborators may only append ride lifecycle and lead events")
	}
	e := Event{
		RideID:       rideID,
		Type:         t,
		UserID:       r.UserID,
		Message:      r.Message,
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
		CheckpointID: r.CheckpointID,
		Metadata:     r.Metadata,
	}
	if r.CreatedAt != nil {
		e.CreatedAt = *r.CreatedAt
	}
	return e, nil
}

func RegisterRoutes(r fiber.Router, feed *Feed, dir ride.Directory, authMiddleware fiber.Handler) {
	r.Get("/rides/:ride_id/activities", authMiddleware, func(c *fiber.Ctx) error {
		rideID := c.Params("ride_id")
		if _, _, err := ride.Access(c.Context(), dir, rideID, auth.UserID(c)); err != nil {
			return apperr.Write(c, err)
		}
		cur, err := ParseCursor(c.Query("cursor"), c.Query("before"))
		if err != nil {
			return apperr.Write(c, err)
		}
		page, err := feed.Page(c.Context(), rideID, c.QueryInt("limit", 0), cur)
		if err != nil {
			return apperr.Write(c, err)
		}
		views, err := Decorate(c.Context(), dir, rideID, page.Events)
		if err != nil {
			return apperr.Write(c, err)
		}
		return c.JSON(fiber.Map{
			"status":      "success",
			"activities":  views,
			"total":       len(views),
			"has_more":    page.HasMore,
			"next_cursor": page.NextCursor,
		})
	})
}

// RegisterInternalRoutes exposes the collaborator write contract.
func RegisterInternalRoutes(r fiber.Router, feed *Feed, dir ride.Directory, serviceMiddleware fiber.Handler) {
	r.Post("/rides/:ride_id/activities", serviceMiddleware, func(c *fiber.Ctx) error {
		rideID := c.Params("ride_id")
		var req AppendRequest
		if err := validate.Body(c, &req); err != nil {
			return apperr.Write(c, err)
		}
		e, err := req.ToEvent(rideID)
		if err != nil {
			return apperr.Write(c, err)
		}
		if _, err := dir.GetRide(c.Context(), rideID); err != nil {
			return apperr.Write(c, err)
		}
		stored, err := feed.Append(c.Context(), e)
		if err != nil {
			return apperr.Write(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"status": "success", "activity": stored})
	})
}
