package jobs

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskEventRelay forwards one domain event to the event stream.
	TaskEventRelay = "events:relay"
	// TaskLowStockScan lists parts at or below the stock threshold.
	TaskLowStockScan = "inventory:low_stock_scan"
)

// EventEnvelope is the wire form of a domain event on the queue and on Kafka.
type EventEnvelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID int64           `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// PartitionKey groups events of the same aggregate, e.g. "inventory:12".
func (e EventEnvelope) PartitionKey() string {
	domain, _, _ := strings.Cut(e.Type, ".")
	return domain + ":" + strconv.FormatInt(e.AggregateID, 10)
}

// NewEventRelayTask constructs the relay task for env. The event id doubles as
// the task id so duplicate enqueues collapse.
func NewEventRelayTask(env EventEnvelope) (*asynq.Task, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEventRelay, body, asynq.Queue(QueueDefault), asynq.TaskID(env.ID), asynq.MaxRetry(10)), nil
}

// LowStockScanPayload overrides the configured threshold when positive.
type LowStockScanPayload struct {
	Threshold int64 `json:"threshold"`
}

// NewLowStockScanTask constructs an Asynq task for the low-stock scan.
func NewLowStockScanTask(threshold int64) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{Threshold: threshold})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}
