// Package live composes the ride's feed, positions, checkpoints and the
// caller's attendance into a single read.
package live

import (
	"context"
	"sort"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/attendance"
	"github.com/pwnchaurasia/WayFind-backend/internal/location"
	"github.com/pwnchaurasia/WayFind-backend/internal/observability"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"

	"github.com/prometheus/client_golang/prometheus"
)

type Activities interface {
	Page(ctx context.Context, rideID string, limit int, cur activity.Cursor) (activity.Page, error)
}

type Positions interface {
	Latest(ctx context.Context, rideID string) (map[string]location.Position, error)
}

type Attendance interface {
	PresentAt(ctx context.Context, rideID string, cp ride.CheckpointType) (map[string]bool, error)
	ForUser(ctx context.Context, rideID, userID string) ([]attendance.Record, error)
}

type RiderLocation struct {
	UserID           string             `json:"user_id"`
	Name             string             `json:"name,omitempty"`
	ProfilePicture   string             `json:"profile_picture,omitempty"`
	Role             ride.Role          `json:"role"`
	Latitude         float64            `json:"latitude"`
	Longitude        float64            `json:"longitude"`
	Heading          *float64           `json:"heading"`
	Speed            *float64           `json:"speed"`
	LastUpdated      time.Time          `json:"last_updated"`
	Stale            bool               `json:"is_stale"`
	AttendanceStatus *attendance.Status `json:"attendance_status"`
}

type AttendanceState struct {
	Status    attendance.Status `json:"status"`
	ReachedAt time.Time         `json:"reached_at"`
}

type Snapshot struct {
	RideStatus        ride.Status                             `json:"ride_status"`
	Activities        []activity.View                         `json:"activities"`
	RiderLocations    []RiderLocation                         `json:"rider_locations"`
	Checkpoints       []ride.Checkpoint                       `json:"checkpoints"`
	MyAttendance      map[ride.CheckpointType]AttendanceState `json:"my_attendance"`
	ParticipantsCount int                                     `json:"participants_count"`
}

// Aggregator is read-only: it never creates attendance records or events.
type Aggregator struct {
	dir        ride.Directory
	activities Activities
	positions  Positions
	attendance Attendance
	limit      int
}

// NewAggregator builds the snapshot reader. activityLimit defaults to 20.
func NewAggregator(dir ride.Directory, activities Activities, positions Positions, att Attendance, activityLimit int) *Aggregator {
	if activityLimit <= 0 {
		activityLimit = 20
	}
	return &Aggregator{dir: dir, activities: activities, positions: positions, attendance: att, limit: activityLimit}
}

func (a *Aggregator) Snapshot(ctx context.Context, rideID, userID string) (Snapshot, error) {
	timer := prometheus.NewTimer(observability.SnapshotDuration)
	defer timer.ObserveDuration()

	r, _, err := ride.Access(ctx, a.dir, rideID, userID)
	if err != nil {
		return Snapshot{}, err
	}

	page, err := a.activities.Page(ctx, rideID, a.limit, activity.Cursor{})
	if err != nil {
		return Snapshot{}, err
	}
	views, err := activity.Decorate(ctx, a.dir, rideID, page.Events)
	if err != nil {
		return Snapshot{}, err
	}

	participants, err := a.dir.ListParticipants(ctx, rideID)
	if err != nil {
		return Snapshot{}, err
	}
	riders, err := a.riderLocations(ctx, rideID, participants)
	if err != nil {
		return Snapshot{}, err
	}

	checkpoints, err := a.dir.ListCheckpoints(ctx, rideID)
	if err != nil {
		return Snapshot{}, err
	}

	records, err := a.attendance.ForUser(ctx, rideID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	mine := make(map[ride.CheckpointType]AttendanceState, len(records))
	for _, rec := range records {
		mine[rec.CheckpointType] = AttendanceState{Status: rec.Status, ReachedAt: rec.ReachedAt}
	}

	active := 0
	for _, p := range participants {
		if !p.Banned() {
			active++
		}
	}

	if checkpoints == nil {
		checkpoints = []ride.Checkpoint{}
	}
	return Snapshot{
		RideStatus:        r.Status,
		Activities:        views,
		RiderLocations:    riders,
		Checkpoints:       checkpoints,
		MyAttendance:      mine,
		ParticipantsCount: active,
	}, nil
}

func (a *Aggregator) riderLocations(ctx context.Context, rideID string, participants []ride.Participant) ([]RiderLocation, error) {
	positions, err := a.positions.Latest(ctx, rideID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		if _, ok := positions[p.UserID]; ok && !p.Banned() {
			ids = append(ids, p.UserID)
		}
	}
	names, err := ride.DisplayNames(ctx, a.dir, ids)
	if err != nil {
		return nil, err
	}
	present, err := a.attendance.PresentAt(ctx, rideID, ride.CheckpointMeetup)
	if err != nil {
		return nil, err
	}

	out := make([]RiderLocation, 0, len(ids))
	for _, p := range participants {
		pos, ok := positions[p.UserID]
		if !ok || p.Banned() {
			continue
		}
		loc := RiderLocation{
			UserID:      p.UserID,
			Role:        p.Role,
			Latitude:    pos.Latitude,
			Longitude:   pos.Longitude,
			Heading:     pos.Heading,
			Speed:       pos.Speed,
			LastUpdated: pos.RecordedAt,
			Stale:       pos.Stale,
		}
		if u, ok := names[p.UserID]; ok {
			loc.Name = u.DisplayName()
			loc.ProfilePicture = u.AvatarURL
		}
		if present[p.UserID] {
			s := attendance.StatusPresent
			loc.AttendanceStatus = &s
		}
		out = append(out, loc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}
