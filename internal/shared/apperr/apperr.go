// Package apperr holds the stable status codes clients branch on.
package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches on Code so a wrapped or re-messaged error still compares equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy carrying a request-specific message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

func New(code string, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

var (
	RideNotFound         = New("ride_not_found", fiber.StatusNotFound, "ride not found")
	RideNotActive        = New("ride_not_active", fiber.StatusBadRequest, "ride is not active")
	NotParticipant       = New("not_participant", fiber.StatusForbidden, "you are not a participant of this ride")
	Banned               = New("banned", fiber.StatusForbidden, "you are banned from this ride")
	NoCheckpointsDefined = New("no_checkpoints_defined", fiber.StatusBadRequest, "no checkpoints defined for this ride")
	InvalidCoordinates   = New("invalid_coordinates", fiber.StatusBadRequest, "invalid coordinates")
	InvalidAlertType     = New("invalid_alert_type", fiber.StatusBadRequest, "invalid alert type")
	InvalidActivityType  = New("invalid_activity_type", fiber.StatusBadRequest, "invalid activity type")
	InvalidCursor        = New("invalid_cursor", fiber.StatusBadRequest, "invalid cursor")
	InvalidPayload       = New("invalid_payload", fiber.StatusBadRequest, "invalid payload")
)

// Write renders err as {"status", "message"}. Unknown errors become a 500
// without leaking internals.
func Write(c *fiber.Ctx, err error) error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(fiber.Map{
			"status":  appErr.Code,
			"message": appErr.Message,
		})
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"status": "error", "message": fe.Message})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"status":  "error",
		"message": "internal server error",
	})
}
