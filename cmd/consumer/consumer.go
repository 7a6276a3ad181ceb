package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pwnchaurasia/WayFind-backend/internal/activity"
	"github.com/pwnchaurasia/WayFind-backend/internal/observability"
	"github.com/pwnchaurasia/WayFind-backend/internal/ride"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/apperr"
	"github.com/pwnchaurasia/WayFind-backend/internal/shared/validate"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	resultAppended = "appended"
	resultInvalid  = "invalid"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

// lifecycleMessage is the payload collaborators publish on the lifecycle topic.
type lifecycleMessage struct {
	RideID string `json:"ride_id" validate:"required"`
	activity.AppendRequest
}

// messageReader is the subset of *kafka.Reader used by consume. Offsets are
// committed explicitly so a failed append is retried instead of skipped.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type handler struct {
	dir  ride.Directory
	feed *activity.Feed
	log  *zap.Logger
}

func decode(value []byte) (activity.Event, error) {
	var msg lifecycleMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return activity.Event{}, apperr.InvalidPayload.WithMessage(err.Error())
	}
	if err := validate.Struct(msg); err != nil {
		return activity.Event{}, err
	}
	return msg.ToEvent(msg.RideID)
}

// handle returns the metric label for the message outcome. Only storage
// failures are returned as errors.
func (h *handler) handle(ctx context.Context, m kafka.Message) (string, error) {
	ev, err := decode(m.Value)
	if err != nil {
		h.log.Warn("skipping invalid message", zap.Int64("offset", m.Offset), zap.Error(err))
		return resultInvalid, nil
	}
	if _, err := h.dir.GetRide(ctx, ev.RideID); err != nil {
		if errors.Is(err, apperr.RideNotFound) {
			h.log.Warn("skipping event for unknown ride", zap.String("ride_id", ev.RideID))
			return resultRejected, nil
		}
		return resultFailed, err
	}
	if _, err := h.feed.Append(ctx, ev); err != nil {
		return resultFailed, err
	}
	h.log.Info("lifecycle event appended", zap.String("ride_id", ev.RideID), zap.String("type", string(ev.Type)))
	return resultAppended, nil
}

// consume reads until ctx is done, backing off exponentially on read and
// storage errors. A message is committed once it is appended or classified
// as invalid or rejected; storage failures retry the same message.
func consume(ctx context.Context, r messageReader, h *handler, initialBackoff, maxBackoff time.Duration) {
	backoff := initialBackoff
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				h.log.Info("shutting down consumer")
				return
			}
			h.log.Warn("kafka read error", zap.Error(err), zap.Duration("backoff", backoff))
			if !sleep(ctx, backoff) {
				return
			}
			backoff = next(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		if !h.process(ctx, m, initialBackoff, maxBackoff) {
			h.log.Info("shutting down consumer with uncommitted message", zap.Int64("offset", m.Offset))
			return
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// process handles m until it no longer fails on storage. It returns false
// when ctx ends first.
func (h *handler) process(ctx context.Context, m kafka.Message, initialBackoff, maxBackoff time.Duration) bool {
	backoff := initialBackoff
	for {
		result, err := h.handle(ctx, m)
		observability.ConsumerMessagesTotal.WithLabelValues(result).Inc()
		if err == nil {
			return true
		}
		h.log.Error("append failed, retrying", zap.Int64("offset", m.Offset), zap.Duration("backoff", backoff), zap.Error(err))
		if !sleep(ctx, backoff) {
			return false
		}
		backoff = next(backoff, maxBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func next(backoff, maxBackoff time.Duration) time.Duration {
	backoff *= 2
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
