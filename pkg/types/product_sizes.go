package types

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
)

// SizeVariant overrides the price, and optionally the stock, of one size of
// a product. A nil Stock means the size draws from the product's stock.
type SizeVariant struct {
	Size  string          `json:"size" validate:"required,oneof=small standard large bulk"`
	Price decimal.Decimal `json:"price"`
	Stock *int            `json:"stock,omitempty" validate:"omitempty,gte=0"`
}

// HasStock reports whether the variant keeps its own stock count.
func (v SizeVariant) HasStock() bool {
	return v.Stock != nil
}

type ProductSizes []SizeVariant

func (p ProductSizes) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return jsonValue([]SizeVariant(p))
}

func (p *ProductSizes) Scan(value interface{}) error {
	if value == nil {
		*p = ProductSizes{}
		return nil
	}
	out := ProductSizes{}
	if err := scanJSON("product sizes", value, &out); err != nil {
		return err
	}
	*p = out
	return nil
}

// Lookup returns the variant for size if the product defines one.
func (p ProductSizes) Lookup(size string) (SizeVariant, bool) {
	for _, variant := range p {
		if variant.Size == size {
			return variant, true
		}
	}
	return SizeVariant{}, false
}

// Clone copies the variants, including their stock pointers.
func (p ProductSizes) Clone() ProductSizes {
	if p == nil {
		return nil
	}
	out := make(ProductSizes, len(p))
	for i, variant := range p {
		if variant.Stock != nil {
			stock := *variant.Stock
			variant.Stock = &stock
		}
		out[i] = variant
	}
	return out
}
