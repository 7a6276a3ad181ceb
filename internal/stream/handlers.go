package stream

import (
	"github.com/pwnchaurasia/WayFind-backend/internal/auth"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	localRideID = "stream_ride_id"
	localUserID = "stream_user_id"
)

// RegisterRoutes mounts the live websocket. Access is checked before the
// upgrade so rejected callers get a normal JSON error.
func RegisterRoutes(r fiber.Router, hub *Hub, dir ride.Directory, authMiddleware fiber.Handler) {
	r.Get("/rides/:ride_id/stream", authMiddleware, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		rideID, userID := c.Params("ride_id"), auth.UserID(c)
		if _, _, err := ride.Access(c.Context(), dir, rideID, userID); err != nil {
			return apperr.Write(c, err)
		}
		c.Locals(localRideID, rideID)
		c.Locals(localUserID, userID)
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		rideID, _ := c.Locals(localRideID).(string)
		userID, _ := c.Locals(localUserID).(string)
		client := hub.Register(rideID, userID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg, ok := <-client.Send:
				if !ok {
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}))
}
