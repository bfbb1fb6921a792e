package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/motoparts/motoparts/internal/inventory"
	jobmetrics "github.com/motoparts/motoparts/internal/jobs"
)

// LowStockSource lists parts at or below a threshold.
type LowStockSource interface {
	ListLowStock(ctx context.Context, threshold int64) ([]inventory.Part, error)
}

// LowStockScanJob emits one inventory.low_stock event per part under the
// threshold.
type LowStockScanJob struct {
	Source    LowStockSource
	Events    inventory.EventPort
	Threshold int64
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(source LowStockSource, events inventory.EventPort, threshold int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Source: source, Events: events, Threshold: threshold, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil || j.Events == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	threshold := j.Threshold
	if payload.Threshold > 0 {
		threshold = payload.Threshold
	}

	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() {
		err = tracker.End(err)
	}()
	logger := j.logger().With(slog.Int64("threshold", threshold))

	parts, err := j.Source.ListLowStock(ctx, threshold)
	if err != nil {
		logger.Error("low stock query failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetLowStock(len(parts))

	var emitErr error
	for _, p := range parts {
		evt := inventory.LowStockEvent{PartID: p.ID, Name: p.Name, Stock: p.Stock, Threshold: threshold}
		if err := j.Events.Emit(ctx, inventory.EventLowStock, p.ID, evt); err != nil {
			logger.Warn("low stock emit failed", slog.Int64("part_id", p.ID), slog.Any("error", err))
			emitErr = errors.Join(emitErr, err)
		}
	}
	logger.Info("low stock scan finished", slog.Int("parts", len(parts)))
	return emitErr
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
