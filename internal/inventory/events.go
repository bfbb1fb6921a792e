package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// Event types emitted after inventory mutations commit.
const (
	EventPartCreated   = "inventory.part_created"
	EventPartUpdated   = "inventory.part_updated"
	EventPartDeleted   = "inventory.part_deleted"
	EventStockAdjusted = "inventory.stock_adjusted"
	EventPriceChanged  = "inventory.price_changed"
	EventLowStock      = "inventory.low_stock"
)

// EventPort publishes domain events for downstream consumers.
type EventPort interface {
	Emit(ctx context.Context, eventType string, aggregateID int64, data any) error
}

// StockAdjustedEvent is the payload of EventStockAdjusted.
type StockAdjustedEvent struct {
	PartID        int64          `json:"part_id"`
	Operation     StockOperation `json:"operation"`
	Amount        int64          `json:"amount"`
	PreviousStock int64          `json:"previous_stock"`
	NewStock      int64          `json:"new_stock"`
	Source        string         `json:"source"`
}

// LowStockEvent is the payload of EventLowStock.
type LowStockEvent struct {
	PartID    int64  `json:"part_id"`
	Name      string `json:"name"`
	Stock     int64  `json:"stock"`
	Threshold int64  `json:"threshold"`
}

// PriceChangedEvent is the payload of EventPriceChanged.
type PriceChangedEvent struct {
	PartID   int64           `json:"part_id"`
	OldPrice decimal.Decimal `json:"old_price"`
	NewPrice decimal.Decimal `json:"new_price"`
}

// PartDeletedEvent is the payload of EventPartDeleted.
type PartDeletedEvent struct {
	PartID         int64 `json:"part_id"`
	HistoryDeleted int64 `json:"history_deleted"`
}
