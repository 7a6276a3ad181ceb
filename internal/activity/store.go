package activity

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pwnchaurasia/WayFind-backend/internal/db"

	"github.com/zeebo/errs"
)

// Error wraps feed storage failures.
var Error = errs.Class("activity")

// Store persists feed events.
type Store interface {
	Append(ctx context.Context, e Event) (Event, error)
	// Page returns up to limit events after cur in (created_at DESC, seq DESC)
	// order and whether more exist beyond them.
	Page(ctx context.Context, rideID string, limit int, cur Cursor) ([]Event, bool, error)
}

type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (s *PostgresStore) Append(ctx context.Context, e Event) (Event, error) {
	return InsertTx(ctx, s.db, e)
}

// InsertTx writes e through q, which may be a transaction owned by the caller.
func InsertTx(ctx context.Context, q db.Querier, e Event) (Event, error) {
	var meta []byte
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return Event{}, Error.Wrap(err)
		}
		meta = b
	}
	row := q.QueryRow(ctx, `
		INSERT INTO ride_activities (id, ride_id, user_id, activity_type, message, latitude, longitude, checkpoint_id, metadata_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING seq
	`, e.ID, e.RideID, nullable(e.UserID), string(e.Type), nullable(e.Message), e.Latitude, e.Longitude, nullable(e.CheckpointID), meta, e.CreatedAt)
	if err := row.Scan(&e.Seq); err != nil {
		return Event{}, Error.Wrap(err)
	}
	return e, nil
}

func (s *PostgresStore) Page(ctx context.Context, rideID string, limit int, cur Cursor) ([]Event, bool, error) {
	var sb strings.Builder
	args := []any{rideID}
	sb.WriteString(`
		SELECT id, seq, ride_id, user_id, activity_type, message, latitude, longitude, checkpoint_id, metadata_json, created_at
		FROM ride_activities
		WHERE ride_id=$1`)
	switch {
	case cur.IsZero():
	case cur.Seq == 0:
		args = append(args, cur.Before)
		sb.WriteString(` AND created_at < $2`)
	default:
		args = append(args, cur.Before, cur.Seq)
		sb.WriteString(` AND (created_at, seq) < ($2, $3)`)
	}
	args = append(args, limit+1)
	sb.WriteString(`
		ORDER BY created_at DESC, seq DESC
		LIMIT $` + strconv.Itoa(len(args)))

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, false, Error.Wrap(err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e            Event
			userID       *string
			activityType string
			message      *string
			checkpointID *string
			meta         []byte
		)
		if err := rows.Scan(&e.ID, &e.Seq, &e.RideID, &userID, &activityType, &message, &e.Latitude, &e.Longitude, &checkpointID, &meta, &e.CreatedAt); err != nil {
			return nil, false, Error.Wrap(err)
		}
		e.Type = ParseType(activityType)
		e.UserID = deref(userID)
		e.Message = deref(message)
		e.CheckpointID = deref(checkpointID)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, false, Error.New("decode metadata for event %s: %v", e.ID, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, Error.Wrap(err)
	}
	return trimPage(out, limit)
}

func trimPage(events []Event, limit int) ([]Event, bool, error) {
	if len(events) > limit {
		return events[:limit], true, nil
	}
	return events, false, nil
}

// MemoryStore keeps events in process with a global insertion counter.
type MemoryStore struct {
	mu     sync.Mutex
	seq    int64
	events map[string][]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: map[string][]Event{}}
}

func (s *MemoryStore) Append(_ context.Context, e Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e.Seq = s.seq
	s.events[e.RideID] = append(s.events[e.RideID], e)
	return e, nil
}

func (s *MemoryStore) Page(_ context.Context, rideID string, limit int, cur Cursor) ([]Event, bool, error) {
	s.mu.Lock()
	all := append([]Event(nil), s.events[rideID]...)
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Seq > all[j].Seq
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	out := make([]Event, 0, limit+1)
	for _, e := range all {
		if !cur.After(e) {
			continue
		}
		out = append(out, e)
		if len(out) > limit {
			break
		}
	}
	return trimPage(out, limit)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
