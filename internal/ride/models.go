package ride

import (
	"strings"
)

type Status string

const (
	StatusPlanned   Status = "planned"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusUnknown   Status = "unknown"
)

// ParseStatus normalises the collaborator's status column.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPlanned:
		return StatusPlanned
	case StatusActive:
		return StatusActive
	case StatusCompleted:
		return StatusCompleted
	default:
		return StatusUnknown
	}
}

type Role string

const (
	RoleRider   Role = "rider"
	RoleLead    Role = "lead"
	RoleMarshal Role = "marshal"
	RoleSweep   Role = "sweep"
	RoleBanned  Role = "banned"
)

func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

type CheckpointType string

const (
	CheckpointMeetup       CheckpointType = "meetup"
	CheckpointDestination  CheckpointType = "destination"
	CheckpointDisbursement CheckpointType = "disbursement"
	CheckpointRefreshment  CheckpointType = "refreshment"
	CheckpointUnknown      CheckpointType = "unknown"
)

func ParseCheckpointType(s string) CheckpointType {
	switch CheckpointType(strings.ToLower(strings.TrimSpace(s))) {
	case CheckpointMeetup:
		return CheckpointMeetup
	case CheckpointDestination:
		return CheckpointDestination
	case CheckpointDisbursement:
		return CheckpointDisbursement
	case CheckpointRefreshment:
		return CheckpointRefreshment
	default:
		return CheckpointUnknown
	}
}

// Label is the human-readable name used in feed messages.
func (t CheckpointType) Label() string {
	switch t {
	case CheckpointMeetup:
		return "Meetup"
	case CheckpointDestination:
		return "Destination"
	case CheckpointDisbursement:
		return "Disbursement"
	case CheckpointRefreshment:
		return "Refreshment"
	default:
		return "Checkpoint"
	}
}

type Ride struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Status         Status `json:"status"`
}

type Participant struct {
	RideID string `json:"ride_id"`
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (p Participant) Banned() bool { return p.Role == RoleBanned }

type Checkpoint struct {
	ID        string         `json:"id"`
	RideID    string         `json:"ride_id"`
	Type      CheckpointType `json:"type"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	RadiusM   float64        `json:"radius_meters"`
	Address   string         `json:"address,omitempty"`
}

func (c Checkpoint) Coordinates() (float64, float64) { return c.Latitude, c.Longitude }

// EffectiveRadius falls back to def when no radius was configured.
func (c Checkpoint) EffectiveRadius(def float64) float64 {
	if c.RadiusM <= 0 {
		return def
	}
	return c.RadiusM
}

type UserDisplay struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"profile_picture,omitempty"`
}

func (u UserDisplay) DisplayName() string {
	if strings.TrimSpace(u.Name) == "" {
		return "A rider"
	}
	return u.Name
}
