package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/motoparts/motoparts/internal/shared"
)

// ============================================================================
// SALE
// ============================================================================

// SaleStatus is the lifecycle state of a sale.
type SaleStatus string

const (
	StatusCompleted SaleStatus = "Completed"
	StatusReturned  SaleStatus = "Returned"
	StatusCancelled SaleStatus = "Cancelled"
)

// Valid reports whether s is a known status.
func (s SaleStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusReturned, StatusCancelled:
		return true
	}
	return false
}

// Sale is the header of one checkout.
type Sale struct {
	ID            int64           `json:"id"`
	Customer      string          `json:"customer"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	SaleDate      time.Time       `json:"sale_date"`
	OrderID       *string         `json:"order_id"`
	Status        SaleStatus      `json:"status"`
	Items         []SaleItem      `json:"items"`
}

// SaleItem is a sale line. Name and Price are snapshots taken at checkout and
// PartID is a soft reference that may outlive the part.
type SaleItem struct {
	ID       int64           `json:"id"`
	SaleID   int64           `json:"sale_id"`
	PartID   int64           `json:"part_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// SaleRow is one item of a sale flattened with its header for listings.
type SaleRow struct {
	ID             int64           `json:"id"`
	OriginalSaleID int64           `json:"originalSaleId"`
	Customer       string          `json:"customer"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Date           time.Time       `json:"date"`
	PaymentMethod  string          `json:"paymentMethod"`
	Status         SaleStatus      `json:"status"`
	ItemName       string          `json:"itemName"`
	Quantity       int64           `json:"quantity"`
}

// ============================================================================
// INPUT
// ============================================================================

// RecordSaleInput carries a checkout as submitted by the client.
type RecordSaleInput struct {
	Customer      string
	Items         []ItemInput
	TotalAmount   decimal.Decimal
	PaymentMethod string
	Date          string
	OrderID       string
	Status        SaleStatus
}

// ItemInput is one cart line.
type ItemInput struct {
	PartID   int64
	Name     string
	Price    decimal.Decimal
	Quantity int64
}

// ParseSaleDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates. An
// empty value yields now.
func ParseSaleDate(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidDate
}

// ============================================================================
// ERRORS
// ============================================================================

var (
	// ErrSaleNotFound indicates the sale does not exist.
	ErrSaleNotFound = shared.NewError(shared.ErrNotFound, "sales: sale not found")
	// ErrInvalidSaleID indicates a non-positive identifier.
	ErrInvalidSaleID = shared.NewError(shared.ErrInvalidArgument, "sales: sale id must be positive")
	// ErrNoItems indicates an empty cart.
	ErrNoItems = shared.NewError(shared.ErrInvalidArgument, "sales: items must not be empty")
	// ErrInvalidTotal indicates a non-positive total amount.
	ErrInvalidTotal = shared.NewError(shared.ErrInvalidArgument, "sales: totalAmount must be greater than zero, below 10000000000 and have at most two decimals")
	// ErrInvalidStatus indicates an unknown sale status.
	ErrInvalidStatus = shared.NewError(shared.ErrInvalidArgument, "sales: status must be one of Completed, Returned, Cancelled")
	// ErrInvalidDate indicates an unparsable sale date.
	ErrInvalidDate = shared.NewError(shared.ErrInvalidArgument, "sales: date must be RFC 3339 or YYYY-MM-DD")
	// ErrDuplicateOrder indicates the order id was already recorded.
	ErrDuplicateOrder = shared.NewError(shared.ErrConflict, "sales: order already recorded")
)

func missingField(name string) error {
	return shared.NewError(shared.ErrInvalidArgument, fmt.Sprintf("sales: %s is required", name))
}

func invalidItem(index int, reason string) error {
	return shared.NewError(shared.ErrInvalidArgument, fmt.Sprintf("sales: item %d %s", index+1, reason))
}
