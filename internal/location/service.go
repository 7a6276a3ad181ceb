package location

import (
	"context"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/observability"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/geo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const KindLocation = "location"

// maxClockSkew bounds how far ahead of the server a client timestamp may be.
const maxClockSkew = 2 * time.Minute

// AttendanceChecker answers whether a rider already checked in at a type.
type AttendanceChecker interface {
	Has(ctx context.Context, rideID, userID string, cp ride.CheckpointType) (bool, error)
}

type Options struct {
	Hub            activity.Broadcaster
	StaleThreshold time.Duration
	DefaultRadiusM float64
	Logger         *zap.Logger
}

type Service struct {
	dir           ride.Directory
	store         Store
	attendance    AttendanceChecker
	hub           activity.Broadcaster
	staleAfter    time.Duration
	defaultRadius float64
	log           *zap.Logger
	now           func() time.Time
}

// NewService builds the location ingest and read service. With a nil
// attendance checker, hints do not consult earlier check-ins.
func NewService(dir ride.Directory, store Store, attendance AttendanceChecker, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = 15 * time.Minute
	}
	if opts.DefaultRadiusM <= 0 {
		opts.DefaultRadiusM = 100
	}
	return &Service{
		dir:           dir,
		store:         store,
		attendance:    attendance,
		hub:           opts.Hub,
		staleAfter:    opts.StaleThreshold,
		defaultRadius: opts.DefaultRadiusM,
		log:           opts.Logger.Named("location"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Update records a sample while the ride is active. Inactive rides accept
// and drop the sample.
func (s *Service) Update(ctx context.Context, rideID, userID string, in UpdateRequest) (UpdateResult, error) {
	if in.Latitude == nil || in.Longitude == nil || !geo.ValidCoordinate(*in.Latitude, *in.Longitude) {
		return UpdateResult{}, apperr.InvalidCoordinates
	}
	r, err := s.dir.GetRide(ctx, rideID)
	if err != nil {
		return UpdateResult{}, err
	}
	if r.Status != ride.StatusActive {
		observability.LocationUpdatesTotal.WithLabelValues(string(OutcomeIgnored)).Inc()
		return UpdateResult{Status: OutcomeIgnored, Message: "Location updates only accepted for active rides"}, nil
	}
	if _, err := ride.Member(ctx, s.dir, rideID, userID); err != nil {
		return UpdateResult{}, err
	}

	now := s.now()
	recordedAt := now
	if in.RecordedAt != nil && !in.RecordedAt.IsZero() && in.RecordedAt.Before(now.Add(maxClockSkew)) {
		recordedAt = in.RecordedAt.UTC()
	}
	sample := Sample{
		ID:         uuid.NewString(),
		RideID:     rideID,
		UserID:     userID,
		Latitude:   *in.Latitude,
		Longitude:  *in.Longitude,
		Heading:    in.Heading,
		Speed:      in.Speed,
		Accuracy:   in.Accuracy,
		RecordedAt: recordedAt.Truncate(time.Microsecond),
	}
	if err := s.store.Insert(ctx, sample); err != nil {
		s.log.Error("insert sample failed", zap.String("ride_id", rideID), zap.String("user_id", userID), zap.Error(err))
		return UpdateResult{}, err
	}
	observability.LocationUpdatesTotal.WithLabelValues(string(OutcomeAccepted)).Inc()

	if s.hub != nil {
		if err := s.hub.BroadcastJSON(rideID, KindLocation, NewPosition(sample, now, s.staleAfter)); err != nil {
			s.log.Warn("broadcast failed", zap.String("ride_id", rideID), zap.Error(err))
		}
	}

	return UpdateResult{
		Status:  OutcomeAccepted,
		Message: "Location updated",
		Hint:    s.hint(ctx, sample),
		Sample:  &sample,
	}, nil
}

// hint is best effort: the sample is already stored, so lookup failures only
// drop the hint.
func (s *Service) hint(ctx context.Context, sample Sample) *CheckinHint {
	checkpoints, err := s.dir.ListCheckpoints(ctx, sample.RideID)
	if err != nil {
		s.log.Warn("list checkpoints failed", zap.String("ride_id", sample.RideID), zap.Error(err))
		return nil
	}
	cp, distance, err := geo.Nearest(sample.Latitude, sample.Longitude, checkpoints)
	if err != nil || distance > cp.EffectiveRadius(s.defaultRadius) {
		return nil
	}
	if s.attendance != nil {
		done, err := s.attendance.Has(ctx, sample.RideID, sample.UserID, cp.Type)
		if err != nil {
			s.log.Warn("attendance lookup failed", zap.String("ride_id", sample.RideID), zap.Error(err))
			return nil
		}
		if done {
			return nil
		}
	}
	return &CheckinHint{Type: cp.Type, ShouldCheckin: true, DistanceMeters: int(distance)}
}

// Latest returns every rider's newest position with the stale flag set.
func (s *Service) Latest(ctx context.Context, rideID string) (map[string]Position, error) {
	samples, err := s.store.Latest(ctx, rideID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make(map[string]Position, len(samples))
	for userID, sample := range samples {
		out[userID] = NewPosition(sample, now, s.staleAfter)
	}
	return out, nil
}
