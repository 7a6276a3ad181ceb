package activity

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"

	"github.com/google/uuid"
)

type Type string

const (
	TypeArrivedMeetup      Type = "arrived_meetup"
	TypeReachedDestination Type = "reached_destination"
	TypeReachedHome        Type = "reached_home"
	TypeCheckedInStop      Type = "checked_in_stop"
	TypeSOSAlert           Type = "sos_alert"
	TypeLowFuel            Type = "low_fuel"
	TypeBreakdown          Type = "breakdown"
	TypeNeedHelp           Type = "need_help"
	TypeLeadAssigned       Type = "lead_assigned"
	TypeLeadRemoved        Type = "lead_removed"
	TypeRideStarted        Type = "ride_started"
	TypeRideEnded          Type = "ride_ended"
	TypeUnknown            Type = "unknown"
)

var knownTypes = map[Type]struct{}{
	TypeArrivedMeetup:      {},
	TypeReachedDestination: {},
	TypeReachedHome:        {},
	TypeCheckedInStop:      {},
	TypeSOSAlert:           {},
	TypeLowFuel:            {},
	TypeBreakdown:          {},
	TypeNeedHelp:           {},
	TypeLeadAssigned:       {},
	TypeLeadRemoved:        {},
	TypeRideStarted:        {},
	TypeRideEnded:          {},
}

// ParseType maps unrecognised tags to TypeUnknown.
func ParseType(s string) Type {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return TypeUnknown
}

// FromCollaborator reports whether t is written by the ride management or
// membership services rather than by this engine.
func (t Type) FromCollaborator() bool {
	switch t {
	case TypeRideStarted, TypeRideEnded, TypeLeadAssigned, TypeLeadRemoved:
		return true
	}
	return false
}

// ForCheckpoint is the feed tag written when a rider checks in at cp.
func ForCheckpoint(cp ride.CheckpointType) Type {
	switch cp {
	case ride.CheckpointMeetup:
		return TypeArrivedMeetup
	case ride.CheckpointDestination:
		return TypeReachedDestination
	case ride.CheckpointDisbursement:
		return TypeReachedHome
	default:
		return TypeCheckedInStop
	}
}

// Event is one append-only feed entry. Seq is the insertion counter that
// breaks created_at ties.
type Event struct {
	ID           string         `json:"id"`
	Seq          int64          `json:"-"`
	RideID       string         `json:"ride_id"`
	Type         Type           `json:"activity_type"`
	UserID       string         `json:"user_id,omitempty"`
	Message      string         `json:"message,omitempty"`
	Latitude     *float64       `json:"latitude,omitempty"`
	Longitude    *float64       `json:"longitude,omitempty"`
	CheckpointID string         `json:"checkpoint_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewEvent returns an event with identity and timestamp assigned.
func NewEvent(rideID string, t Type) Event {
	return Event{
		ID:        uuid.NewString(),
		RideID:    rideID,
		Type:      t,
		CreatedAt: Now(),
	}
}

// Now is truncated to the storage precision so cursors round-trip exactly.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Cursor is an exclusive position in a ride's feed. A zero Seq means
// "strictly before Before".
type Cursor struct {
	Before time.Time
	Seq    int64
}

func (c Cursor) IsZero() bool { return c.Before.IsZero() }

// After reports whether e sorts after c in descending feed order, that is
// whether e belongs on the page that follows c.
func (c Cursor) After(e Event) bool {
	if c.IsZero() {
		return true
	}
	if c.Seq == 0 {
		return e.CreatedAt.Before(c.Before)
	}
	if e.CreatedAt.Equal(c.Before) {
		return e.Seq < c.Seq
	}
	return e.CreatedAt.Before(c.Before)
}

func CursorFor(e Event) Cursor {
	return Cursor{Before: e.CreatedAt, Seq: e.Seq}
}

// Encode renders the cursor as an opaque url-safe token.
func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	raw := strconv.FormatInt(c.Before.UnixMicro(), 10) + ":" + strconv.FormatInt(c.Seq, 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor accepts either an opaque token from Encode or, when token is
// empty, an RFC3339 "before" timestamp.
func ParseCursor(token, before string) (Cursor, error) {
	if token != "" {
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			return Cursor{}, apperr.InvalidCursor
		}
		micros, seq, ok := strings.Cut(string(raw), ":")
		if !ok {
			return Cursor{}, apperr.InvalidCursor
		}
		us, err := strconv.ParseInt(micros, 10, 64)
		if err != nil {
			return Cursor{}, apperr.InvalidCursor
		}
		n, err := strconv.ParseInt(seq, 10, 64)
		if err != nil || n < 0 {
			return Cursor{}, apperr.InvalidCursor
		}
		return Cursor{Before: time.UnixMicro(us).UTC(), Seq: n}, nil
	}
	if before != "" {
		ts, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			return Cursor{}, apperr.InvalidCursor.WithMessage("before must be an RFC3339 timestamp")
		}
		return Cursor{Before: ts.UTC()}, nil
	}
	return Cursor{}, nil
}

// Page is one slice of the feed, newest first.
type Page struct {
	Events     []Event
	HasMore    bool
	NextCursor string
}
