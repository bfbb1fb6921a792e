package inventory

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/motoparts/motoparts/internal/shared"
)

// StockOperation enumerates the supported stock adjustments.
type StockOperation string

const (
	// StockIncrease adds to the on-hand quantity.
	StockIncrease StockOperation = "increase"
	// StockDecrease removes from the on-hand quantity, flooring at zero.
	StockDecrease StockOperation = "decrease"
)

// Valid reports whether op is one of the supported literals.
func (op StockOperation) Valid() bool {
	return op == StockIncrease || op == StockDecrease
}

// Part is a catalog item with price and on-hand quantity.
type Part struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Stock       int64           `json:"stock"`
	Image       string          `json:"image"`
	Category    *string         `json:"category"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PriceHistoryEntry records one price change of a part. Entries are immutable.
type PriceHistoryEntry struct {
	ID         int64           `json:"id"`
	PartID     int64           `json:"part_id"`
	OldPrice   decimal.Decimal `json:"old_price"`
	NewPrice   decimal.Decimal `json:"new_price"`
	ChangeDate time.Time       `json:"change_date"`
}

// StockAdjustment describes the outcome of a stock mutation.
type StockAdjustment struct {
	PartID        int64
	Operation     StockOperation
	Amount        int64
	PreviousStock int64
	NewStock      int64
}

// Clamped reports whether the decrease was floored at zero.
func (a StockAdjustment) Clamped() bool {
	return a.Operation == StockDecrease && a.PreviousStock-a.Amount < 0
}

// PartInput carries the fields of a new part.
type PartInput struct {
	Name        string
	Price       decimal.Decimal
	Description string
	Stock       int64
	Image       string
	Category    string
}

// PartUpdate carries editable fields. A nil Image keeps the stored filename.
type PartUpdate struct {
	Name        string
	Price       decimal.Decimal
	Description string
	Category    string
	Image       *string
}

// ApplyStockChange computes the stock after op, clamping at zero. An increase
// that would pass math.MaxInt64 is rejected.
func ApplyStockChange(current, amount int64, op StockOperation) (int64, error) {
	if op == StockDecrease {
		return max(current-amount, 0), nil
	}
	if amount > math.MaxInt64-current {
		return 0, ErrStockOverflow
	}
	return current + amount, nil
}

// ReferencedError reports a delete blocked by another table's foreign key.
type ReferencedError struct {
	PartID int64
	Detail string
}

func (e *ReferencedError) Error() string {
	msg := "This part is referenced in other records and cannot be deleted."
	if e.Detail != "" {
		msg += " Details: " + e.Detail
	}
	return msg
}

// Code identifies the conflict for API clients.
func (e *ReferencedError) Code() string { return "ER_ROW_IS_REFERENCED" }

// Unwrap classifies the error for transport mapping.
func (e *ReferencedError) Unwrap() error { return shared.ErrReferenced }

var (
	// ErrPartNotFound indicates the referenced part does not exist.
	ErrPartNotFound = shared.NewError(shared.ErrNotFound, "inventory: part not found")
	// ErrInvalidPartID indicates a non-positive identifier.
	ErrInvalidPartID = shared.NewError(shared.ErrInvalidArgument, "inventory: part id must be positive")
	// ErrInvalidAmount indicates a non-positive stock amount.
	ErrInvalidAmount = shared.NewError(shared.ErrInvalidArgument, "inventory: amount must be a positive integer")
	// ErrInvalidOperation indicates an unknown stock operation.
	ErrInvalidOperation = shared.NewError(shared.ErrInvalidArgument, `inventory: operation must be "increase" or "decrease"`)
	// ErrInvalidPrice indicates a price that is not positive or does not fit
	// the money column.
	ErrInvalidPrice = shared.NewError(shared.ErrInvalidArgument, "inventory: price must be greater than zero, below 10000000000 and have at most two decimals")
	// ErrStockOverflow indicates an increase past the largest storable quantity.
	ErrStockOverflow = shared.NewError(shared.ErrInvalidArgument, "inventory: stock increase exceeds the maximum quantity")
	// ErrInvalidStock indicates a negative initial stock.
	ErrInvalidStock = shared.NewError(shared.ErrInvalidArgument, "inventory: stock must not be negative")
	// ErrCategoryRequired indicates an empty category name.
	ErrCategoryRequired = shared.NewError(shared.ErrInvalidArgument, "inventory: category name is required")
)

func missingField(name string) error {
	return shared.NewError(shared.ErrInvalidArgument, fmt.Sprintf("inventory: %s is required", name))
}
