package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/motoparts/motoparts/internal/jobs"
	"github.com/motoparts/motoparts/internal/shared"
)

const (
	relayModule  = "events"
	claimTimeout = 5 * time.Second
)

// Publisher delivers a keyed message to the event stream.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// ClaimStore records relayed event ids. *shared.IdempotencyStore satisfies it.
type ClaimStore interface {
	Exists(ctx context.Context, key, module string) (bool, error)
	CheckAndInsert(ctx context.Context, key, module string) error
}

// EventRelayJob forwards queued domain events to Kafka. An id is claimed only
// after its publish succeeded, so a cancelled or crashed attempt is retried
// and a finished one is not sent again.
type EventRelayJob struct {
	Claims    ClaimStore
	Publisher Publisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewEventRelayJob initialises the relay handler.
func NewEventRelayJob(claims ClaimStore, publisher Publisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *EventRelayJob {
	return &EventRelayJob{Claims: claims, Publisher: publisher, Logger: logger, Metrics: metrics}
}

// Handle executes one relay attempt.
func (j *EventRelayJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Publisher == nil || j.Claims == nil {
		return errors.New("event relay: handler not configured")
	}
	var env EventEnvelope
	if err := json.Unmarshal(t.Payload(), &env); err != nil || env.ID == "" || env.Type == "" {
		j.logger().Error("discarding malformed event", slog.String("task", t.Type()))
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskEventRelay)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.logger().With(slog.String("event_id", env.ID), slog.String("type", env.Type))

	relayed, err := j.Claims.Exists(ctx, env.ID, relayModule)
	if err != nil {
		return err
	}
	if relayed {
		logger.Debug("event already relayed")
		j.Metrics.AddRelayed(env.Type, "duplicate")
		return nil
	}

	headers := map[string]string{
		"event_id":   env.ID,
		"event_type": env.Type,
	}
	if err := j.Publisher.Publish(ctx, env.PartitionKey(), t.Payload(), headers); err != nil {
		j.Metrics.AddRelayed(env.Type, "failed")
		logger.Warn("event publish failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddRelayed(env.Type, "published")

	// The message is out; record it even if the task context is gone.
	claimCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), claimTimeout)
	defer cancel()
	if err := j.Claims.CheckAndInsert(claimCtx, env.ID, relayModule); err != nil && !errors.Is(err, shared.ErrIdempotencyConflict) {
		logger.Warn("record relay claim", slog.Any("error", err))
	}
	logger.Debug("event relayed", slog.String("key", env.PartitionKey()))
	return nil
}

func (j *EventRelayJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
