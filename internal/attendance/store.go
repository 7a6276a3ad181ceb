package attendance

import (
	"context"
	"errors"
	"sync"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/db"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zeebo/errs"
)

// Error wraps attendance storage failures.
var Error = errs.Class("attendance")

// ErrDuplicate means a record for (ride, user, checkpoint type) already exists.
var ErrDuplicate = errors.New("attendance already recorded")

type Store interface {
	Find(ctx context.Context, rideID, userID string, cp ride.CheckpointType) (Record, bool, error)
	ForUser(ctx context.Context, rideID, userID string) ([]Record, error)
	ListAt(ctx context.Context, rideID string, cp ride.CheckpointType) ([]Record, error)
	// Create stores rec and its feed event as one unit. Neither is visible
	// if either write fails.
	Create(ctx context.Context, rec Record, ev activity.Event) (Record, activity.Event, error)
}

type PostgresStore struct {
	db db.Pool
}

// NewPostgresStore needs a pool because Create runs in a transaction.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

const recordColumns = `id, ride_id, user_id, checkpoint_type, status, COALESCE(latitude, 0), COALESCE(longitude, 0), reached_at`

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r      Record
		cpType string
		status string
	)
	if err := row.Scan(&r.ID, &r.RideID, &r.UserID, &cpType, &status, &r.Latitude, &r.Longitude, &r.ReachedAt); err != nil {
		return Record{}, err
	}
	r.CheckpointType = ride.ParseCheckpointType(cpType)
	r.Status = Status(status)
	return r, nil
}

func (s *PostgresStore) Find(ctx context.Context, rideID, userID string, cp ride.CheckpointType) (Record, bool, error) {
	r, err := scanRecord(s.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE ride_id=$1 AND user_id=$2 AND checkpoint_type=$3
	`, rideID, userID, string(cp)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, Error.Wrap(err)
	}
	return r, true, nil
}

func (s *PostgresStore) ForUser(ctx context.Context, rideID, userID string) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE ride_id=$1 AND user_id=$2
		ORDER BY reached_at
	`, rideID, userID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return collectRecords(rows)
}

func (s *PostgresStore) ListAt(ctx context.Context, rideID string, cp ride.CheckpointType) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE ride_id=$1 AND checkpoint_type=$2
	`, rideID, string(cp))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		out = append(out, r)
	}
	return out, Error.Wrap(rows.Err())
}

func (s *PostgresStore) Create(ctx context.Context, rec Record, ev activity.Event) (Record, activity.Event, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Record{}, activity.Event{}, Error.Wrap(err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO attendance_records (id, ride_id, user_id, checkpoint_type, status, latitude, longitude, reached_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (ride_id, user_id, checkpoint_type) DO NOTHING
		RETURNING reached_at
	`, rec.ID, rec.RideID, rec.UserID, string(rec.CheckpointType), string(rec.Status), rec.Latitude, rec.Longitude, rec.ReachedAt).Scan(&rec.ReachedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return Record{}, activity.Event{}, ErrDuplicate
		}
		return Record{}, activity.Event{}, Error.Wrap(err)
	}

	stored, err := activity.InsertTx(ctx, tx, ev)
	if err != nil {
		_ = tx.Rollback(ctx)
		return Record{}, activity.Event{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return Record{}, activity.Event{}, ErrDuplicate
		}
		return Record{}, activity.Event{}, Error.Wrap(err)
	}
	return rec, stored, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == db.UniqueViolation
}

type key struct {
	rideID, userID string
	cp             ride.CheckpointType
}

// MemoryStore holds one lock across the uniqueness check and both writes.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[key]Record
	activity *activity.MemoryStore
}

func NewMemoryStore(feed *activity.MemoryStore) *MemoryStore {
	return &MemoryStore{records: map[key]Record{}, activity: feed}
}

func (s *MemoryStore) Find(_ context.Context, rideID, userID string, cp ride.CheckpointType) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key{rideID, userID, cp}]
	return r, ok, nil
}

func (s *MemoryStore) ForUser(_ context.Context, rideID, userID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for k, r := range s.records {
		if k.rideID == rideID && k.userID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAt(_ context.Context, rideID string, cp ride.CheckpointType) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for k, r := range s.records {
		if k.rideID == rideID && k.cp == cp {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, rec Record, ev activity.Event) (Record, activity.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{rec.RideID, rec.UserID, rec.CheckpointType}
	if _, ok := s.records[k]; ok {
		return Record{}, activity.Event{}, ErrDuplicate
	}
	stored, err := s.activity.Append(ctx, ev)
	if err != nil {
		return Record{}, activity.Event{}, err
	}
	s.records[k] = rec
	return rec, stored, nil
}
