package db

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Decimal converts a scanned NUMERIC into a decimal. NULL and NaN map to zero.
func Decimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// NumericArg renders d as a query argument. Strings are sent in text format,
// which PostgreSQL parses into NUMERIC without float rounding.
func NumericArg(d decimal.Decimal) string {
	return d.String()
}

// maxMoney is the first value a NUMERIC(12, 2) column cannot hold.
var maxMoney = decimal.New(1, 10)

// FitsMoney reports whether d is stored exactly by a NUMERIC(12, 2) column:
// at most two decimal places and an absolute value below 10^10.
func FitsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2)) && d.Abs().LessThan(maxMoney)
}
