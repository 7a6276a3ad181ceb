package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/observability"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/geo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracker turns a position into at most one attendance record per
// (ride, user, checkpoint type).
type Tracker struct {
	dir           ride.Directory
	store         Store
	feed          *activity.Feed
	defaultRadius float64
	log           *zap.Logger
	now           func() time.Time
}

// DefaultRadiusMeters applies to checkpoints without a configured radius
// when the tracker is built with a non-positive default.
const DefaultRadiusMeters = 100.0

// NewTracker builds a Tracker. defaultRadius is used for checkpoints that
// carry no radius of their own; zero or less means DefaultRadiusMeters.
func NewTracker(dir ride.Directory, store Store, feed *activity.Feed, defaultRadius float64, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultRadius <= 0 {
		defaultRadius = DefaultRadiusMeters
	}
	return &Tracker{
		dir:           dir,
		store:         store,
		feed:          feed,
		defaultRadius: defaultRadius,
		log:           log.Named("attendance"),
		now:           activity.Now,
	}
}

// TryCheckIn records attendance at the nearest checkpoint when the position
// falls inside its radius. A second check-in for the same checkpoint type
// reports the original time and writes nothing.
func (t *Tracker) TryCheckIn(ctx context.Context, rideID, userID string, lat, lng float64) (Result, error) {
	if !geo.ValidCoordinate(lat, lng) {
		return Result{}, apperr.InvalidCoordinates
	}
	if _, _, err := ride.AccessActive(ctx, t.dir, rideID, userID); err != nil {
		return Result{}, err
	}

	checkpoints, err := t.dir.ListCheckpoints(ctx, rideID)
	if err != nil {
		return Result{}, err
	}
	cp, distance, err := geo.Nearest(lat, lng, checkpoints)
	if errors.Is(err, geo.ErrNoCheckpoints) {
		return Result{}, apperr.NoCheckpointsDefined
	}
	if err != nil {
		return Result{}, err
	}

	radius := cp.EffectiveRadius(t.defaultRadius)
	if distance > radius {
		observability.CheckinsTotal.WithLabelValues(string(OutcomeNotAtCheckpoint)).Inc()
		return Result{
			Status:  OutcomeNotAtCheckpoint,
			Message: fmt.Sprintf("You are %dm away from the nearest checkpoint (%s). Need to be within %gm.", int(distance), cp.Type, radius),
			Nearest: &NearestInfo{Type: cp.Type, DistanceMeters: int(distance), RequiredRadius: radius},
		}, nil
	}

	if existing, ok, err := t.store.Find(ctx, rideID, userID, cp.Type); err != nil {
		return Result{}, err
	} else if ok {
		return t.alreadyCheckedIn(cp, existing), nil
	}

	name := "A rider"
	if u, err := t.dir.GetUserDisplay(ctx, userID); err == nil {
		name = u.DisplayName()
	} else if !errors.Is(err, ride.ErrUserNotFound) {
		return Result{}, err
	}

	rec := Record{
		ID:             uuid.NewString(),
		RideID:         rideID,
		UserID:         userID,
		CheckpointType: cp.Type,
		Status:         StatusPresent,
		Latitude:       lat,
		Longitude:      lng,
		ReachedAt:      t.now(),
	}
	ev := activity.NewEvent(rideID, activity.ForCheckpoint(cp.Type))
	ev.CreatedAt = rec.ReachedAt
	ev.UserID = userID
	ev.Message = fmt.Sprintf("%s arrived at %s", name, cp.Type.Label())
	ev.Latitude, ev.Longitude = &lat, &lng
	ev.CheckpointID = cp.ID

	rec, ev, err = t.store.Create(ctx, rec, ev)
	if errors.Is(err, ErrDuplicate) {
		// lost the race to a concurrent request for the same checkpoint type
		existing, ok, ferr := t.store.Find(ctx, rideID, userID, cp.Type)
		if ferr != nil {
			return Result{}, ferr
		}
		if !ok {
			return Result{}, Error.New("attendance conflict for %s/%s but no record found", rideID, cp.Type)
		}
		return t.alreadyCheckedIn(cp, existing), nil
	}
	if err != nil {
		t.log.Error("check-in failed", zap.String("ride_id", rideID), zap.String("user_id", userID), zap.Error(err))
		return Result{}, err
	}

	if t.feed != nil {
		t.feed.Notify(ctx, ev)
	}
	observability.CheckinsTotal.WithLabelValues(string(OutcomeCheckedIn)).Inc()
	t.log.Info("checked in",
		zap.String("ride_id", rideID),
		zap.String("user_id", userID),
		zap.String("checkpoint_type", string(cp.Type)),
		zap.Float64("distance_m", distance),
	)

	return Result{
		Status:     OutcomeCheckedIn,
		Message:    fmt.Sprintf("Checked in at %s!", cp.Type.Label()),
		Checkpoint: &CheckpointInfo{ID: cp.ID, Type: cp.Type, Address: cp.Address},
		Record:     &rec,
		Activity:   &ev,
	}, nil
}

func (t *Tracker) alreadyCheckedIn(cp ride.Checkpoint, existing Record) Result {
	observability.CheckinsTotal.WithLabelValues(string(OutcomeAlreadyCheckedIn)).Inc()
	reached := existing.ReachedAt
	return Result{
		Status:      OutcomeAlreadyCheckedIn,
		Message:     fmt.Sprintf("You already checked in at %s", cp.Type.Label()),
		Checkpoint:  &CheckpointInfo{ID: cp.ID, Type: cp.Type, Address: cp.Address},
		CheckedInAt: &reached,
	}
}

// Has reports whether the user already has attendance for a checkpoint type.
func (t *Tracker) Has(ctx context.Context, rideID, userID string, cp ride.CheckpointType) (bool, error) {
	_, ok, err := t.store.Find(ctx, rideID, userID, cp)
	return ok, err
}

// PresentAt returns the users with attendance at a checkpoint type in one lookup.
func (t *Tracker) PresentAt(ctx context.Context, rideID string, cp ride.CheckpointType) (map[string]bool, error) {
	records, err := t.store.ListAt(ctx, rideID, cp)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(records))
	for _, r := range records {
		present[r.UserID] = true
	}
	return present, nil
}

func (t *Tracker) ForUser(ctx context.Context, rideID, userID string) ([]Record, error) {
	return t.store.ForUser(ctx, rideID, userID)
}
