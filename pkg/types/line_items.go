package types

import (
	"database/sql/driver"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
)

// LineItem is one product+size+quantity entry of a cart or an order snapshot.
// Name, Price and Image are copied from the catalog when the line is created
// and are not refreshed afterwards.
type LineItem struct {
	ID        uuid.UUID         `json:"id"`
	ProductID uuid.UUID         `json:"productId"`
	Name      string            `json:"name"`
	Price     decimal.Decimal   `json:"price"`
	Quantity  int               `json:"quantity"`
	Size      enums.ProductSize `json:"size"`
	Image     string            `json:"image,omitempty"`
}

// LineTotal is price x quantity without rounding.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineItems persists as a jsonb array.
type LineItems []LineItem

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return jsonValue([]LineItem(l))
}

func (l *LineItems) Scan(value interface{}) error {
	if value == nil {
		*l = LineItems{}
		return nil
	}
	items := LineItems{}
	if err := scanJSON("line items", value, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// TotalQuantity sums quantities across all lines.
func (l LineItems) TotalQuantity() int {
	total := 0
	for _, item := range l {
		total += item.Quantity
	}
	return total
}

// Find returns the index of the line with id, or -1.
func (l LineItems) Find(id uuid.UUID) int {
	for i, item := range l {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// FindVariant returns the index of the line for productID in size, or -1.
func (l LineItems) FindVariant(productID uuid.UUID, size enums.ProductSize) int {
	for i, item := range l {
		if item.ProductID == productID && item.Size == size {
			return i
		}
	}
	return -1
}

// Clone copies the slice so callers can mutate without touching the original.
func (l LineItems) Clone() LineItems {
	out := make(LineItems, len(l))
	copy(out, l)
	return out
}
