package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/observability"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/geo"

	"go.uber.org/zap"
)

var types = map[activity.Type]string{
	activity.TypeSOSAlert:  "SOS! %s needs immediate help!",
	activity.TypeLowFuel:   "%s is running low on fuel",
	activity.TypeBreakdown: "%s has a breakdown",
	activity.TypeNeedHelp:  "%s needs assistance",
}

// ParseType accepts only the alert subset of activity types.
func ParseType(s string) (activity.Type, error) {
	t := activity.Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := types[t]; !ok {
		return "", apperr.InvalidAlertType.WithMessage("valid types: sos_alert, low_fuel, breakdown, need_help")
	}
	return t, nil
}

type Request struct {
	Type      string
	Message   string
	Latitude  *float64
	Longitude *float64
}

// Dispatcher records alerts in the ride feed. Every call appends a new
// event; repeated alerts are never merged.
type Dispatcher struct {
	dir  ride.Directory
	feed *activity.Feed
	log  *zap.Logger
}

// NewDispatcher returns a Dispatcher that publishes alerts through feed.
func NewDispatcher(dir ride.Directory, feed *activity.Feed, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{dir: dir, feed: feed, log: log.Named("alert")}
}

func (d *Dispatcher) Send(ctx context.Context, rideID, userID string, req Request) (activity.Event, error) {
	t, err := ParseType(req.Type)
	if err != nil {
		return activity.Event{}, err
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return activity.Event{}, apperr.InvalidCoordinates.WithMessage("latitude and longitude must be sent together")
	}
	if req.Latitude != nil && !geo.ValidCoordinate(*req.Latitude, *req.Longitude) {
		return activity.Event{}, apperr.InvalidCoordinates
	}
	if _, _, err := ride.AccessActive(ctx, d.dir, rideID, userID); err != nil {
		return activity.Event{}, err
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		name := "A rider"
		u, err := d.dir.GetUserDisplay(ctx, userID)
		switch {
		case err == nil:
			name = u.DisplayName()
		case !errors.Is(err, ride.ErrUserNotFound):
			return activity.Event{}, err
		}
		message = fmt.Sprintf(types[t], name)
	}

	ev := activity.NewEvent(rideID, t)
	ev.UserID = userID
	ev.Message = message
	ev.Latitude, ev.Longitude = req.Latitude, req.Longitude

	stored, err := d.feed.Append(ctx, ev)
	if err != nil {
		return activity.Event{}, err
	}
	observability.AlertsTotal.WithLabelValues(string(t)).Inc()
	d.log.Warn("alert raised",
		zap.String("type", string(t)),
		zap.String("ride_id", rideID),
		zap.String("user_id", userID),
	)
	return stored, nil
}
