package attendance

import (
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
)

type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

type Record struct {
	ID             string              `json:"id"`
	RideID         string              `json:"ride_id"`
	UserID         string              `json:"user_id"`
	CheckpointType ride.CheckpointType `json:"checkpoint_type"`
	Status         Status              `json:"status"`
	Latitude       float64             `json:"latitude"`
	Longitude      float64             `json:"longitude"`
	ReachedAt      time.Time           `json:"reached_at"`
}

type Outcome string

const (
	OutcomeCheckedIn        Outcome = "checked_in"
	OutcomeNotAtCheckpoint  Outcome = "not_at_checkpoint"
	OutcomeAlreadyCheckedIn Outcome = "already_checked_in"
)

type CheckpointInfo struct {
	ID      string              `json:"id"`
	Type    ride.CheckpointType `json:"type"`
	Address string              `json:"address,omitempty"`
}

type NearestInfo struct {
	Type           ride.CheckpointType `json:"type"`
	DistanceMeters int                 `json:"distance_meters"`
	RequiredRadius float64             `json:"required_radius"`
}

// Result is the outcome of a check-in attempt. Only CheckedIn carries an
// activity event.
type Result struct {
	Status      Outcome         `json:"status"`
	Message     string          `json:"message"`
	Checkpoint  *CheckpointInfo `json:"checkpoint,omitempty"`
	Nearest     *NearestInfo    `json:"nearest_checkpoint,omitempty"`
	CheckedInAt *time.Time      `json:"checked_in_at,omitempty"`
	Record      *Record         `json:"-"`
	Activity    *activity.Event `json:"-"`
}
