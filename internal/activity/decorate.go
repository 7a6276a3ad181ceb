package activity

import (
	"context"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
)

type Actor struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

type CheckpointRef struct {
	ID      string              `json:"id"`
	Type    ride.CheckpointType `json:"type"`
	Address string              `json:"address,omitempty"`
}

// View is the client representation of an event with its actor and
// checkpoint resolved.
type View struct {
	ID         string         `json:"id"`
	Type       Type           `json:"activity_type"`
	Message    string         `json:"message,omitempty"`
	User       *Actor         `json:"user"`
	Checkpoint *CheckpointRef `json:"checkpoint"`
	Latitude   *float64       `json:"latitude"`
	Longitude  *float64       `json:"longitude"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Decorate joins display info onto events. Unknown users or checkpoints are
// left nil.
func Decorate(ctx context.Context, dir ride.Directory, rideID string, events []Event) ([]View, error) {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.UserID)
	}
	users, err := ride.DisplayNames(ctx, dir, ids)
	if err != nil {
		return nil, err
	}

	checkpoints := map[string]ride.Checkpoint{}
	if hasCheckpointRef(events) {
		cps, err := dir.ListCheckpoints(ctx, rideID)
		if err != nil {
			return nil, err
		}
		for _, cp := range cps {
			checkpoints[cp.ID] = cp
		}
	}

	out := make([]View, 0, len(events))
	for _, e := range events {
		v := View{
			ID:        e.ID,
			Type:      e.Type,
			Message:   e.Message,
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		}
		if u, ok := users[e.UserID]; ok {
			v.User = &Actor{ID: u.ID, Name: u.Name, ProfilePicture: u.AvatarURL}
		}
		if cp, ok := checkpoints[e.CheckpointID]; ok {
			v.Checkpoint = &CheckpointRef{ID: cp.ID, Type: cp.Type, Address: cp.Address}
		}
		out = append(out, v)
	}
	return out, nil
}

func hasCheckpointRef(events []Event) bool {
	for _, e := range events {
		if e.CheckpointID != "" {
			return true
		}
	}
	return false
}
