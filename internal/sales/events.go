package sales

import (
	"context"

	"github.com/shopspring/decimal"
)

// Event types emitted after sales mutations commit.
const (
	EventSaleRecorded      = "sales.recorded"
	EventSaleStatusChanged = "sales.status_changed"
)

// EventPort publishes domain events for downstream consumers.
type EventPort interface {
	Emit(ctx context.Context, eventType string, aggregateID int64, data any) error
}

// SaleRecordedEvent is the payload of EventSaleRecorded.
type SaleRecordedEvent struct {
	SaleID        int64           `json:"sale_id"`
	OrderID       string          `json:"order_id,omitempty"`
	Customer      string          `json:"customer"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Lines         []RecordedLine  `json:"lines"`
}

// RecordedLine reports the stock effect of one sale line. Tracked is false
// when the part no longer existed and stock was left alone.
type RecordedLine struct {
	PartID   int64 `json:"part_id"`
	Quantity int64 `json:"quantity"`
	Tracked  bool  `json:"tracked"`
	NewStock int64 `json:"new_stock"`
}

// StatusChangedEvent is the payload of EventSaleStatusChanged.
type StatusChangedEvent struct {
	SaleID int64      `json:"sale_id"`
	Status SaleStatus `json:"status"`
}
