package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

var feedColumns = []string{"id", "seq", "ride_id", "user_id", "activity_type", "message", "latitude", "longitude", "checkpoint_id", "metadata_json", "created_at"}

func TestPostgresStoreAppend(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	e := NewEvent("ride-1", TypeSOSAlert)
	e.UserID = "user-1"
	e.Metadata = map[string]any{"source": "test"}

	mock.ExpectQuery(`INSERT INTO ride_activities`).
		WithArgs(e.ID, "ride-1", pgxmock.AnyArg(), "sos_alert", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), e.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(7)))

	stored, err := store.Append(context.Background(), e)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if stored.Seq != 7 {
		t.Fatalf("expected seq 7, got %d", stored.Seq)
	}

	mock.ExpectQuery(`INSERT INTO ride_activities`).WillReturnError(errors.New("insert failed"))
	if _, err := store.Append(context.Background(), e); err == nil || !Error.Has(err) {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStorePage(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	now := time.Now().UTC()
	user := "user-1"
	msg := "hello"
	lat, lng := 12.97, 77.59

	rows := pgxmock.NewRows(feedColumns).
		AddRow("e3", int64(3), "ride-1", &user, "sos_alert", &msg, &lat, &lng, (*string)(nil), []byte(`{"k":"v"}`), now).
		AddRow("e2", int64(2), "ride-1", (*string)(nil), "ride_started", (*string)(nil), (*float64)(nil), (*float64)(nil), (*string)(nil), []byte(nil), now.Add(-time.Second)).
		AddRow("e1", int64(1), "ride-1", (*string)(nil), "mystery", (*string)(nil), (*float64)(nil), (*float64)(nil), (*string)(nil), []byte(nil), now.Add(-2*time.Second))
	mock.ExpectQuery(`FROM ride_activities\s+WHERE ride_id=\$1\s+ORDER BY created_at DESC, seq DESC\s+LIMIT \$2`).
		WithArgs("ride-1", 3).
		WillReturnRows(rows)

	events, more, err := store.Page(context.Background(), "ride-1", 2, Cursor{})
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(events) != 2 || !more {
		t.Fatalf("expected 2 events with more, got %d %v", len(events), more)
	}
	if events[0].UserID != "user-1" || events[0].Message != "hello" || events[0].Metadata["k"] != "v" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].UserID != "" || events[1].Latitude != nil {
		t.Fatalf("expected null columns to stay empty: %+v", events[1])
	}

	mock.ExpectQuery(`AND created_at < \$2\s+ORDER BY created_at DESC, seq DESC\s+LIMIT \$3`).
		WithArgs("ride-1", now, 11).
		WillReturnRows(pgxmock.NewRows(feedColumns))
	events, more, err = store.Page(context.Background(), "ride-1", 10, Cursor{Before: now})
	if err != nil || len(events) != 0 || more {
		t.Fatalf("expected empty page, got %d %v %v", len(events), more, err)
	}

	mock.ExpectQuery(`AND \(created_at, seq\) < \(\$2, \$3\)\s+ORDER BY created_at DESC, seq DESC\s+LIMIT \$4`).
		WithArgs("ride-1", now, int64(9), 6).
		WillReturnRows(pgxmock.NewRows(feedColumns))
	if _, _, err := store.Page(context.Background(), "ride-1", 5, Cursor{Before: now, Seq: 9}); err != nil {
		t.Fatalf("page with seq cursor: %v", err)
	}

	mock.ExpectQuery(`FROM ride_activities`).WillReturnError(errors.New("down"))
	if _, _, err := store.Page(context.Background(), "ride-1", 5, Cursor{}); err == nil {
		t.Fatalf("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStorePageCorruptMetadata(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	store := NewPostgresStore(mock)
	rows := pgxmock.NewRows(feedColumns).
		AddRow("e1", int64(1), "ride-1", (*string)(nil), "sos_alert", (*string)(nil), (*float64)(nil), (*float64)(nil), (*string)(nil), []byte(`{"k":`), time.Now().UTC())
	mock.ExpectQuery(`FROM ride_activities`).WithArgs("ride-1", 6).WillReturnRows(rows)

	_, _, err = store.Page(context.Background(), "ride-1", 5, Cursor{})
	if err == nil || !Error.Has(err) {
		t.Fatalf("expected wrapped metadata error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemoryStoreOrdersTiesBySeq(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ts := Now()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Append(ctx, Event{ID: id, RideID: "ride-1", Type: TypeRideStarted, CreatedAt: ts}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := store.Append(ctx, Event{ID: "other", RideID: "ride-2", Type: TypeRideStarted, CreatedAt: ts}); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, more, err := store.Page(ctx, "ride-1", 10, Cursor{})
	if err != nil || more {
		t.Fatalf("page: %v more=%v", err, more)
	}
	if len(events) != 3 || events[0].ID != "c" || events[2].ID != "a" {
		t.Fatalf("expected c,b,a got %+v", events)
	}

	next, _, _ := store.Page(ctx, "ride-1", 10, CursorFor(events[0]))
	if len(next) != 2 || next[0].ID != "b" {
		t.Fatalf("expected b,a after c, got %+v", next)
	}
}
