package location

import (
	"context"
	"sync"

	"github.com/pwnchaurasia/WayFind-backend/internal/db"

	"github.com/zeebo/errs"
)

// Error wraps location storage failures.
var Error = errs.Class("location")

type Store interface {
	// Insert appends s. Re-sending the same (ride, user, recorded_at) is a no-op.
	Insert(ctx context.Context, s Sample) error
	// Latest returns the sample with the greatest recorded_at per user.
	Latest(ctx context.Context, rideID string) (map[string]Sample, error)
}

type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Insert(ctx context.Context, sample Sample) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_locations (id, ride_id, user_id, latitude, longitude, heading, speed, accuracy, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (ride_id, user_id, recorded_at) DO NOTHING
	`, sample.ID, sample.RideID, sample.UserID, sample.Latitude, sample.Longitude, sample.Heading, sample.Speed, sample.Accuracy, sample.RecordedAt)
	return Error.Wrap(err)
}

func (s *PostgresStore) Latest(ctx context.Context, rideID string) (map[string]Sample, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (user_id) id, user_id, latitude, longitude, heading, speed, accuracy, recorded_at
		FROM user_locations
		WHERE ride_id=$1
		ORDER BY user_id, recorded_at DESC
	`, rideID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	out := map[string]Sample{}
	for rows.Next() {
		sample := Sample{RideID: rideID}
		if err := rows.Scan(&sample.ID, &sample.UserID, &sample.Latitude, &sample.Longitude, &sample.Heading, &sample.Speed, &sample.Accuracy, &sample.RecordedAt); err != nil {
			return nil, Error.Wrap(err)
		}
		out[sample.UserID] = sample
	}
	if err := rows.Err(); err != nil {
		return nil, Error.Wrap(err)
	}
	return out, nil
}

// MemoryStore keeps only the newest sample per rider; history is not needed
// without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	latest map[string]map[string]Sample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{latest: map[string]map[string]Sample{}}
}

func (s *MemoryStore) Insert(_ context.Context, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	riders := s.latest[sample.RideID]
	if riders == nil {
		riders = map[string]Sample{}
		s.latest[sample.RideID] = riders
	}
	if cur, ok := riders[sample.UserID]; ok && !sample.RecordedAt.After(cur.RecordedAt) {
		return nil
	}
	riders[sample.UserID] = sample
	return nil
}

func (s *MemoryStore) Latest(_ context.Context, rideID string) (map[string]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Sample, len(s.latest[rideID]))
	for k, v := range s.latest[rideID] {
		out[k] = v
	}
	return out, nil
}
