package router

import (
	"strings"

	"github.com/shopspring/decimal"
)

// stringPtr returns a trimmed pointer or nil when the input is empty.
func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func int64Ptr(value int64) *int64 {
	return &value
}

// cents converts a money amount to integer minor units for BigQuery.
func cents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func centsPtr(amount decimal.Decimal) *int64 {
	return int64Ptr(cents(amount))
}
