package ride

import (
	"context"
	"errors"

	"github.com/pwnchaurasia/WayFind-backend/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// invalidID reports a malformed uuid argument. No row can match it, so
// callers treat it like a missing row.
func invalidID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == db.InvalidTextRepresentation
}

// PostgresDirectory reads the collaborator tables directly.
type PostgresDirectory struct {
	db db.Querier
}

func NewPostgresDirectory(q db.Querier) *PostgresDirectory {
	return &PostgresDirectory{db: q}
}

func (d *PostgresDirectory) GetRide(ctx context.Context, rideID string) (Ride, error) {
	var (
		r      Ride
		status string
	)
	err := d.db.QueryRow(ctx, `
		SELECT id, organization_id, status
		FROM rides WHERE id=$1
	`, rideID).Scan(&r.ID, &r.OrganizationID, &status)
	if errors.Is(err, pgx.ErrNoRows) || invalidID(err) {
		return Ride{}, ErrRideNotFound
	}
	if err != nil {
		return Ride{}, Error.Wrap(err)
	}
	r.Status = ParseStatus(status)
	return r, nil
}

func (d *PostgresDirectory) GetParticipant(ctx context.Context, rideID, userID string) (Participant, error) {
	p := Participant{RideID: rideID, UserID: userID}
	var role string
	err := d.db.QueryRow(ctx, `
		SELECT role FROM ride_participants
		WHERE ride_id=$1 AND user_id=$2
	`, rideID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) || invalidID(err) {
		return Participant{}, ErrNotParticipant
	}
	if err != nil {
		return Participant{}, Error.Wrap(err)
	}
	p.Role = ParseRole(role)
	return p, nil
}

func (d *PostgresDirectory) ListParticipants(ctx context.Context, rideID string) ([]Participant, error) {
	rows, err := d.db.Query(ctx, `
		SELECT user_id, role FROM ride_participants
		WHERE ride_id=$1
		ORDER BY user_id
	`, rideID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		p := Participant{RideID: rideID}
		var role string
		if err := rows.Scan(&p.UserID, &role); err != nil {
			return nil, Error.Wrap(err)
		}
		p.Role = ParseRole(role)
		out = append(out, p)
	}
	return out, Error.Wrap(rows.Err())
}

func (d *PostgresDirectory) GetUserDisplay(ctx context.Context, userID string) (UserDisplay, error) {
	var (
		u      UserDisplay
		name   *string
		avatar *string
	)
	err := d.db.QueryRow(ctx, `
		SELECT id, name, profile_picture_url FROM users WHERE id=$1
	`, userID).Scan(&u.ID, &name, &avatar)
	if errors.Is(err, pgx.ErrNoRows) || invalidID(err) {
		return UserDisplay{}, ErrUserNotFound
	}
	if err != nil {
		return UserDisplay{}, Error.Wrap(err)
	}
	if name != nil {
		u.Name = *name
	}
	if avatar != nil {
		u.AvatarURL = *avatar
	}
	return u, nil
}

// ListUserDisplays skips ids that are not uuids; they cannot match a row.
func (d *PostgresDirectory) ListUserDisplays(ctx context.Context, userIDs []string) ([]UserDisplay, error) {
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, err := uuid.Parse(id); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := d.db.Query(ctx, `
		SELECT id, name, profile_picture_url FROM users WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var out []UserDisplay
	for rows.Next() {
		var (
			u      UserDisplay
			name   *string
			avatar *string
		)
		if err := rows.Scan(&u.ID, &name, &avatar); err != nil {
			return nil, Error.Wrap(err)
		}
		if name != nil {
			u.Name = *name
		}
		if avatar != nil {
			u.AvatarURL = *avatar
		}
		out = append(out, u)
	}
	return out, Error.Wrap(rows.Err())
}

func (d *PostgresDirectory) ListCheckpoints(ctx context.Context, rideID string) ([]Checkpoint, error) {
	rows, err := d.db.Query(ctx, `
		SELECT id, type, latitude, longitude, radius_meters, address
		FROM ride_checkpoints
		WHERE ride_id=$1
		ORDER BY created_at, id
	`, rideID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp := Checkpoint{RideID: rideID}
		var (
			cpType  string
			radius  *float64
			address *string
		)
		if err := rows.Scan(&cp.ID, &cpType, &cp.Latitude, &cp.Longitude, &radius, &address); err != nil {
			return nil, Error.Wrap(err)
		}
		cp.Type = ParseCheckpointType(cpType)
		if radius != nil {
			cp.RadiusM = *radius
		}
		if address != nil {
			cp.Address = *address
		}
		out = append(out, cp)
	}
	return out, Error.Wrap(rows.Err())
}
