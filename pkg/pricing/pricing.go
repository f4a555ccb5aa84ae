// Package pricing turns cart lines into server-computed totals.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

const (
	// MaxLineQuantity caps a single (product, size) line.
	MaxLineQuantity = 10
	// MaxCartQuantity caps the summed quantity of every line in a cart.
	MaxCartQuantity = 50

	moneyPlaces = 2
)

var (
	DefaultTaxRate               = decimal.RequireFromString("0.08")
	DefaultFreeShippingThreshold = decimal.RequireFromString("50.00")
	DefaultFlatShipping          = decimal.RequireFromString("9.99")
)

// Totals are always derived from line items; clients never supply them.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// ZeroTotals is the totals of an empty cart.
func ZeroTotals() Totals {
	return Totals{
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Shipping: decimal.Zero,
		Total:    decimal.Zero,
	}
}

// Engine computes totals with a fixed set of rates.
type Engine struct {
	taxRate               decimal.Decimal
	freeShippingThreshold decimal.Decimal
	flatShipping          decimal.Decimal
	maxCartQuantity       int
}

// NewEngine returns an engine with the default rates.
func NewEngine() *Engine {
	return &Engine{
		taxRate:               DefaultTaxRate,
		freeShippingThreshold: DefaultFreeShippingThreshold,
		flatShipping:          DefaultFlatShipping,
		maxCartQuantity:       MaxCartQuantity,
	}
}

// NewEngineFromConfig parses the configured rates.
func NewEngineFromConfig(cfg config.PricingConfig) (*Engine, error) {
	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("pricing tax rate: %w", err)
	}
	threshold, err := decimal.NewFromString(cfg.FreeShippingThreshold)
	if err != nil {
		return nil, fmt.Errorf("pricing free shipping threshold: %w", err)
	}
	flat, err := decimal.NewFromString(cfg.FlatShipping)
	if err != nil {
		return nil, fmt.Errorf("pricing flat shipping: %w", err)
	}
	return &Engine{
		taxRate:               taxRate,
		freeShippingThreshold: threshold,
		flatShipping:          flat,
		maxCartQuantity:       MaxCartQuantity,
	}, nil
}

// ComputeTotals prices lines. Rounding happens once on the summed subtotal,
// never per line, so the result does not depend on line order.
func (e *Engine) ComputeTotals(lines []types.LineItem) (Totals, error) {
	quantity := 0
	sum := decimal.Zero
	for _, line := range lines {
		quantity += line.Quantity
		sum = sum.Add(line.LineTotal())
	}
	if quantity > e.maxCartQuantity {
		return Totals{}, pkgerrors.New(pkgerrors.CodeCartLimit, fmt.Sprintf("cart cannot hold more than %d items", e.maxCartQuantity)).
			WithDetails(map[string]any{"quantity": quantity, "limit": e.maxCartQuantity})
	}
	if len(lines) == 0 {
		return ZeroTotals(), nil
	}

	subtotal := Round(sum)
	tax := Round(subtotal.Mul(e.taxRate))
	shipping := e.flatShipping
	if subtotal.GreaterThanOrEqual(e.freeShippingThreshold) {
		shipping = decimal.Zero
	}
	total := Round(subtotal.Add(tax).Add(shipping))

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    total,
	}, nil
}

// Round rounds to cents, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// Format renders d with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(moneyPlaces)
}
