package activity

import (
	"context"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/observability"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster pushes a message to every live subscriber of a ride.
type Broadcaster interface {
	BroadcastJSON(rideID, kind string, v any) error
}

const KindActivity = "activity"

type FeedOptions struct {
	Hub          Broadcaster
	Publisher    Publisher
	Logger       *zap.Logger
	DefaultLimit int
	MaxLimit     int
}

// Feed is the single write path into a ride's activity log.
type Feed struct {
	store        Store
	hub          Broadcaster
	publisher    Publisher
	log          *zap.Logger
	defaultLimit int
	maxLimit     int
}

// NewFeed wraps store with fan-out to the hub and publisher in opts.
// Zero limits in opts fall back to the package defaults.
func NewFeed(store Store, opts FeedOptions) *Feed {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 100
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	return &Feed{
		store:        store,
		hub:          opts.Hub,
		publisher:    opts.Publisher,
		log:          opts.Logger.Named("activity"),
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
	}
}

// Append validates and stores e, then fans it out.
func (f *Feed) Append(ctx context.Context, e Event) (Event, error) {
	if e.RideID == "" {
		return Event{}, apperr.InvalidPayload.WithMessage("ride_id is required")
	}
	if ParseType(string(e.Type)) == TypeUnknown {
		return Event{}, apperr.InvalidActivityType.WithMessage("unknown activity type " + string(e.Type))
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = Now()
	} else {
		e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)
	}

	stored, err := f.store.Append(ctx, e)
	if err != nil {
		f.log.Error("append failed", zap.String("ride_id", e.RideID), zap.String("type", string(e.Type)), zap.Error(err))
		return Event{}, err
	}
	f.Notify(ctx, stored)
	return stored, nil
}

// Notify fans a committed event out to websocket subscribers and the
// message bus. Delivery failures are logged and never fail the write.
func (f *Feed) Notify(ctx context.Context, e Event) {
	observability.ActivitiesAppendedTotal.WithLabelValues(string(e.Type)).Inc()
	if f.hub != nil {
		if err := f.hub.BroadcastJSON(e.RideID, KindActivity, e); err != nil {
			f.log.Warn("broadcast failed", zap.String("ride_id", e.RideID), zap.Error(err))
		}
	}
	if f.publisher != nil {
		if err := f.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
			f.log.Warn("publish failed", zap.String("ride_id", e.RideID), zap.String("event_id", e.ID), zap.Error(err))
		}
	}
}

// Page returns one page of the feed, newest first. limit is clamped to
// [1, max] and zero selects the default.
func (f *Feed) Page(ctx context.Context, rideID string, limit int, cur Cursor) (Page, error) {
	limit = f.clamp(limit)
	events, more, err := f.store.Page(ctx, rideID, limit, cur)
	if err != nil {
		return Page{}, err
	}
	p := Page{Events: events, HasMore: more}
	if p.Events == nil {
		p.Events = []Event{}
	}
	if more && len(events) > 0 {
		p.NextCursor = CursorFor(events[len(events)-1]).Encode()
	}
	return p, nil
}

func (f *Feed) clamp(limit int) int {
	if limit <= 0 {
		return f.defaultLimit
	}
	if limit > f.maxLimit {
		return f.maxLimit
	}
	return limit
}
