package location

import (
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
)

// Sample is one write-once GPS fix.
type Sample struct {
	ID         string    `json:"id"`
	RideID     string    `json:"ride_id"`
	UserID     string    `json:"user_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Position is the latest sample for a rider with staleness derived at read time.
type Position struct {
	Sample
	Stale bool `json:"is_stale"`
}

func NewPosition(s Sample, now time.Time, staleAfter time.Duration) Position {
	return Position{Sample: s, Stale: now.Sub(s.RecordedAt) > staleAfter}
}

type UpdateRequest struct {
	Latitude   *float64   `json:"latitude" validate:"required,latitude"`
	Longitude  *float64   `json:"longitude" validate:"required,longitude"`
	Heading    *float64   `json:"heading" validate:"omitempty,gte=0,lt=360"`
	Speed      *float64   `json:"speed" validate:"omitempty,gte=0"`
	Accuracy   *float64   `json:"accuracy" validate:"omitempty,gte=0"`
	RecordedAt *time.Time `json:"recorded_at"`
}

type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeIgnored  Outcome = "ignored"
)

// CheckinHint tells the client a check-in is available. It never triggers one.
type CheckinHint struct {
	Type           ride.CheckpointType `json:"type"`
	ShouldCheckin  bool                `json:"should_checkin"`
	DistanceMeters int                 `json:"distance"`
}

type UpdateResult struct {
	Status  Outcome      `json:"status"`
	Message string       `json:"message"`
	Hint    *CheckinHint `json:"auto_checkin_available"`
	Sample  *Sample      `json:"-"`
}
