package ride

import (
	"context"
	"errors"
	"fmt"

	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"

	"github.com/zeebo/errs"
)

// Error wraps storage failures from the collaborator tables.
var Error = errs.Class("ride")

var (
	ErrRideNotFound   = apperr.RideNotFound
	ErrRideNotActive  = apperr.RideNotActive
	ErrNotParticipant = apperr.NotParticipant
	ErrBanned         = apperr.Banned

	// ErrUserNotFound is returned by GetUserDisplay for unknown users.
	ErrUserNotFound = errors.New("user not found")
)

// Directory is the read-only view over rides, memberships, checkpoints and
// user profiles owned by the ride management service.
type Directory interface {
	GetRide(ctx context.Context, rideID string) (Ride, error)
	GetParticipant(ctx context.Context, rideID, userID string) (Participant, error)
	ListParticipants(ctx context.Context, rideID string) ([]Participant, error)
	GetUserDisplay(ctx context.Context, userID string) (UserDisplay, error)
	// ListUserDisplays returns the known users among userIDs in one lookup.
	ListUserDisplays(ctx context.Context, userIDs []string) ([]UserDisplay, error)
	ListCheckpoints(ctx context.Context, rideID string) ([]Checkpoint, error)
}

// Access resolves the ride and the caller's membership, rejecting unknown
// rides, non-members and banned members.
func Access(ctx context.Context, dir Directory, rideID, userID string) (Ride, Participant, error) {
	r, err := dir.GetRide(ctx, rideID)
	if err != nil {
		return Ride{}, Participant{}, err
	}
	p, err := Member(ctx, dir, rideID, userID)
	if err != nil {
		return Ride{}, Participant{}, err
	}
	return r, p, nil
}

// AccessActive is Access for write paths: the ride must also be active.
// The ride state is checked before membership.
func AccessActive(ctx context.Context, dir Directory, rideID, userID string) (Ride, Participant, error) {
	r, err := dir.GetRide(ctx, rideID)
	if err != nil {
		return Ride{}, Participant{}, err
	}
	if err := RequireActive(r); err != nil {
		return Ride{}, Participant{}, err
	}
	p, err := Member(ctx, dir, rideID, userID)
	if err != nil {
		return Ride{}, Participant{}, err
	}
	return r, p, nil
}

// Member returns the caller's membership, rejecting banned participants.
func Member(ctx context.Context, dir Directory, rideID, userID string) (Participant, error) {
	p, err := dir.GetParticipant(ctx, rideID, userID)
	if err != nil {
		return Participant{}, err
	}
	if p.Banned() {
		return Participant{}, ErrBanned
	}
	return p, nil
}

// RequireActive rejects rides outside the active state.
func RequireActive(r Ride) error {
	if r.Status != StatusActive {
		return ErrRideNotActive.WithMessage(fmt.Sprintf("ride is %s, only active rides accept this operation", r.Status))
	}
	return nil
}

// DisplayNames resolves names for a set of users in one directory call,
// skipping unknown and empty ids.
func DisplayNames(ctx context.Context, dir Directory, userIDs []string) (map[string]UserDisplay, error) {
	seen := make(map[string]struct{}, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	out := make(map[string]UserDisplay, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	users, err := dir.ListUserDisplays(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}
