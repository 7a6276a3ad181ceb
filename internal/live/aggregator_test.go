package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/attendance"
	"github.com/pwnchaurasia/WayFind-backend/internal/location"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
)

type fixture struct {
	dir     *ride.MemoryDirectory
	events  *activity.MemoryStore
	samples *location.MemoryStore
	tracker *attendance.Tracker
	agg     *Aggregator
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := ride.NewMemoryDirectory()
	dir.PutRide(ride.Ride{ID: "ride-1", Status: ride.StatusActive})
	dir.PutRide(ride.Ride{ID: "ride-done", Status: ride.StatusCompleted})
	for _, p := range []ride.Participant{
		{RideID: "ride-1", UserID: "user-1", Role: ride.RoleLead},
		{RideID: "ride-1", UserID: "user-2", Role: ride.RoleRider},
		{RideID: "ride-1", UserID: "user-3", Role: ride.RoleRider},
		{RideID: "ride-1", UserID: "user-banned", Role: ride.RoleBanned},
		{RideID: "ride-done", UserID: "user-1", Role: ride.RoleRider},
	} {
		dir.PutParticipant(p)
	}
	dir.PutUser(ride.UserDisplay{ID: "user-1", Name: "Asha", AvatarURL: "https://cdn.example/asha.png"})
	dir.PutUser(ride.UserDisplay{ID: "user-2", Name: "Vikram"})
	dir.PutCheckpoint(ride.Checkpoint{ID: "cp-meetup", RideID: "ride-1", Type: ride.CheckpointMeetup, Latitude: 12.9716, Longitude: 77.5946, RadiusM: 100})
	dir.PutCheckpoint(ride.Checkpoint{ID: "cp-dest", RideID: "ride-1", Type: ride.CheckpointDestination, Latitude: 13.3, Longitude: 77.9})

	events := activity.NewMemoryStore()
	feed := activity.NewFeed(events, activity.FeedOptions{})
	tracker := attendance.NewTracker(dir, attendance.NewMemoryStore(events), feed, 100, nil)
	samples := location.NewMemoryStore()
	svc := location.NewService(dir, samples, tracker, location.Options{StaleThreshold: 15 * time.Minute})

	ctx := context.Background()
	if _, err := tracker.TryCheckIn(ctx, "ride-1", "user-1", 12.9716, 77.5950); err != nil {
		t.Fatalf("check in user-1: %v", err)
	}
	if _, err := tracker.TryCheckIn(ctx, "ride-1", "user-2", 12.9716, 77.5946); err != nil {
		t.Fatalf("check in user-2: %v", err)
	}
	now := time.Now().UTC()
	for _, s := range []location.Sample{
		{ID: "s1", RideID: "ride-1", UserID: "user-1", Latitude: 12.98, Longitude: 77.60, RecordedAt: now.Add(-time.Minute)},
		{ID: "s2", RideID: "ride-1", UserID: "user-2", Latitude: 12.99, Longitude: 77.61, RecordedAt: now.Add(-30 * time.Minute)},
		{ID: "s3", RideID: "ride-1", UserID: "user-banned", Latitude: 12.99, Longitude: 77.61, RecordedAt: now},
	} {
		if err := samples.Insert(ctx, s); err != nil {
			t.Fatalf("insert sample: %v", err)
		}
	}

	return fixture{
		dir:     dir,
		events:  events,
		samples: samples,
		tracker: tracker,
		agg:     NewAggregator(dir, feed, svc, tracker, 20),
	}
}

func (f fixture) eventCount(t *testing.T) int {
	t.Helper()
	events, _, err := f.events.Page(context.Background(), "ride-1", 1000, activity.Cursor{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	return len(events)
}

func (f fixture) recordCount(t *testing.T) int {
	t.Helper()
	n := 0
	for _, u := range []string{"user-1", "user-2", "user-3", "user-banned"} {
		recs, err := f.tracker.ForUser(context.Background(), "ride-1", u)
		if err != nil {
			t.Fatalf("for user: %v", err)
		}
		n += len(recs)
	}
	return n
}

func TestSnapshotComposition(t *testing.T) {
	f := newFixture(t)
	snap, err := f.agg.Snapshot(context.Background(), "ride-1", "user-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.RideStatus != ride.StatusActive {
		t.Fatalf("expected active ride, got %s", snap.RideStatus)
	}
	if len(snap.Activities) != 2 || snap.Activities[0].User == nil || snap.Activities[0].User.ID != "user-2" {
		t.Fatalf("expected newest-first decorated activities, got %+v", snap.Activities)
	}
	if len(snap.Checkpoints) != 2 {
		t.Fatalf("expected two checkpoints, got %d", len(snap.Checkpoints))
	}
	if snap.ParticipantsCount != 3 {
		t.Fatalf("expected three non-banned participants, got %d", snap.ParticipantsCount)
	}

	if len(snap.RiderLocations) != 2 {
		t.Fatalf("expected locations for user-1 and user-2 only, got %+v", snap.RiderLocations)
	}
	first, second := snap.RiderLocations[0], snap.RiderLocations[1]
	if first.UserID != "user-1" || first.Name != "Asha" || first.ProfilePicture == "" || first.Stale {
		t.Fatalf("unexpected fresh rider: %+v", first)
	}
	if second.UserID != "user-2" || !second.Stale {
		t.Fatalf("expected user-2 stale, got %+v", second)
	}
	if first.AttendanceStatus == nil || *first.AttendanceStatus != attendance.StatusPresent {
		t.Fatalf("expected meetup attendance on rider location")
	}

	if len(snap.MyAttendance) != 1 {
		t.Fatalf("expected only the caller's attendance, got %+v", snap.MyAttendance)
	}
	if st, ok := snap.MyAttendance[ride.CheckpointMeetup]; !ok || st.Status != attendance.StatusPresent || st.ReachedAt.IsZero() {
		t.Fatalf("unexpected my attendance: %+v", snap.MyAttendance)
	}
}

func TestSnapshotIsReadOnly(t *testing.T) {
	f := newFixture(t)
	events, records := f.eventCount(t), f.recordCount(t)

	// user-3 stands on the meetup checkpoint but has never checked in.
	if err := f.samples.Insert(context.Background(), location.Sample{ID: "s4", RideID: "ride-1", UserID: "user-3", Latitude: 12.9716, Longitude: 77.5946, RecordedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.agg.Snapshot(context.Background(), "ride-1", "user-3"); err != nil {
			t.Fatalf("snapshot: %v", err)
		}
	}
	if f.eventCount(t) != events || f.recordCount(t) != records {
		t.Fatalf("snapshot must not write events or attendance")
	}
}

func TestSnapshotAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.agg.Snapshot(ctx, "missing", "user-1"); !errors.Is(err, apperr.RideNotFound) {
		t.Fatalf("expected ride_not_found, got %v", err)
	}
	if _, err := f.agg.Snapshot(ctx, "ride-1", "stranger"); !errors.Is(err, apperr.NotParticipant) {
		t.Fatalf("expected not_participant, got %v", err)
	}
	if _, err := f.agg.Snapshot(ctx, "ride-1", "user-banned"); !errors.Is(err, apperr.Banned) {
		t.Fatalf("expected banned, got %v", err)
	}

	snap, err := f.agg.Snapshot(ctx, "ride-done", "user-1")
	if err != nil {
		t.Fatalf("completed rides stay readable: %v", err)
	}
	if snap.RideStatus != ride.StatusCompleted || len(snap.Activities) != 0 || len(snap.RiderLocations) != 0 {
		t.Fatalf("unexpected snapshot for completed ride: %+v", snap)
	}
}

func TestSnapshotActivityLimit(t *testing.T) {
	f := newFixture(t)
	feed := activity.NewFeed(f.events, activity.FeedOptions{})
	for i := 0; i < 30; i++ {
		e := activity.NewEvent("ride-1", activity.TypeNeedHelp)
		e.UserID = "user-1"
		if _, err := feed.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	snap, err := f.agg.Snapshot(context.Background(), "ride-1", "user-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Activities) != 20 {
		t.Fatalf("expected 20 activities, got %d", len(snap.Activities))
	}
}

type countingDirectory struct {
	*ride.MemoryDirectory
	single, batch int
}

func (c *countingDirectory) GetUserDisplay(ctx context.Context, userID string) (ride.UserDisplay, error) {
	c.single++
	return c.MemoryDirectory.GetUserDisplay(ctx, userID)
}

func (c *countingDirectory) ListUserDisplays(ctx context.Context, userIDs []string) ([]ride.UserDisplay, error) {
	c.batch++
	return c.MemoryDirectory.ListUserDisplays(ctx, userIDs)
}

type countingAttendance struct {
	*attendance.Tracker
	presentAt int
}

func (c *countingAttendance) PresentAt(ctx context.Context, rideID string, cp ride.CheckpointType) (map[string]bool, error) {
	c.presentAt++
	return c.Tracker.PresentAt(ctx, rideID, cp)
}

func TestSnapshotBatchesRiderLookups(t *testing.T) {
	f := newFixture(t)
	dir := &countingDirectory{MemoryDirectory: f.dir}
	att := &countingAttendance{Tracker: f.tracker}
	svc := location.NewService(f.dir, f.samples, f.tracker, location.Options{StaleThreshold: 15 * time.Minute})
	feed := activity.NewFeed(f.events, activity.FeedOptions{})
	agg := NewAggregator(dir, feed, svc, att, 20)

	snap, err := agg.Snapshot(context.Background(), "ride-1", "user-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.RiderLocations) != 2 {
		t.Fatalf("expected two riders, got %+v", snap.RiderLocations)
	}
	if dir.batch != 1 || dir.single != 0 {
		t.Fatalf("expected one user lookup, got batch=%d single=%d", dir.batch, dir.single)
	}
	if att.presentAt != 1 {
		t.Fatalf("expected one attendance lookup, got %d", att.presentAt)
	}
	for _, loc := range snap.RiderLocations {
		if loc.AttendanceStatus == nil {
			t.Fatalf("expected meetup attendance for %s", loc.UserID)
		}
	}
}
