package alert

import (
	"context"
	"errors"
	"testing"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
)

func setup() (*ride.MemoryDirectory, *activity.MemoryStore, *Dispatcher) {
	dir := ride.NewMemoryDirectory()
	dir.PutRide(ride.Ride{ID: "ride-1", Status: ride.StatusActive})
	dir.PutRide(ride.Ride{ID: "ride-planned", Status: ride.StatusPlanned})
	dir.PutParticipant(ride.Participant{RideID: "ride-1", UserID: "user-1", Role: ride.RoleLead})
	dir.PutParticipant(ride.Participant{RideID: "ride-1", UserID: "user-banned", Role: ride.RoleBanned})
	dir.PutParticipant(ride.Participant{RideID: "ride-planned", UserID: "user-1", Role: ride.RoleRider})
	dir.PutUser(ride.UserDisplay{ID: "user-1", Name: "Ravi"})

	store := activity.NewMemoryStore()
	feed := activity.NewFeed(store, activity.FeedOptions{})
	return dir, store, NewDispatcher(dir, feed, nil)
}

func count(t *testing.T, store *activity.MemoryStore, rideID string) int {
	t.Helper()
	events, _, err := store.Page(context.Background(), rideID, 1000, activity.Cursor{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	return len(events)
}

func TestSendCannedMessages(t *testing.T) {
	_, store, d := setup()
	want := map[string]string{
		"sos_alert": "SOS! Ravi needs immediate help!",
		"low_fuel":  "Ravi is running low on fuel",
		"breakdown": "Ravi has a breakdown",
		"need_help": "Ravi needs assistance",
	}
	for typ, msg := range want {
		ev, err := d.Send(context.Background(), "ride-1", "user-1", Request{Type: typ})
		if err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
		if string(ev.Type) != typ || ev.Message != msg {
			t.Fatalf("%s: unexpected event %+v", typ, ev)
		}
	}
	if count(t, store, "ride-1") != 4 {
		t.Fatalf("expected four events")
	}
}

func TestSendCustomMessageAndCoordinates(t *testing.T) {
	_, _, d := setup()
	lat, lng := 12.97, 77.59
	ev, err := d.Send(context.Background(), "ride-1", "user-1", Request{Type: "breakdown", Message: " Flat tyre near toll ", Latitude: &lat, Longitude: &lng})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ev.Message != "Flat tyre near toll" || ev.Latitude == nil || *ev.Latitude != lat {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSendNoDeduplication(t *testing.T) {
	_, store, d := setup()
	for i := 0; i < 3; i++ {
		if _, err := d.Send(context.Background(), "ride-1", "user-1", Request{Type: "sos_alert"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if count(t, store, "ride-1") != 3 {
		t.Fatalf("every SOS must produce an event")
	}
}

func TestSendRejects(t *testing.T) {
	_, store, d := setup()
	lat := 12.0
	badLat := 100.0
	lng := 77.0

	cases := []struct {
		rideID, userID string
		req            Request
		want           error
	}{
		{"ride-1", "user-1", Request{Type: "honk"}, apperr.InvalidAlertType},
		{"ride-1", "user-banned", Request{Type: "sos_alert"}, apperr.Banned},
		{"ride-1", "stranger", Request{Type: "sos_alert"}, apperr.NotParticipant},
		{"ride-planned", "user-1", Request{Type: "sos_alert"}, apperr.RideNotActive},
		{"ride-1", "user-1", Request{Type: "sos_alert", Latitude: &lat}, apperr.InvalidCoordinates},
		{"ride-1", "user-1", Request{Type: "sos_alert", Latitude: &badLat, Longitude: &lng}, apperr.InvalidCoordinates},
	}
	for _, tc := range cases {
		if _, err := d.Send(context.Background(), tc.rideID, tc.userID, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%+v: expected %v, got %v", tc.req, tc.want, err)
		}
	}
	if count(t, store, "ride-1") != 0 || count(t, store, "ride-planned") != 0 {
		t.Fatalf("rejected alerts must not append events")
	}
}
