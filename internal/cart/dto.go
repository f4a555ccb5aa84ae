package cart

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// LineItemDTO is the response shape of a cart or order line.
type LineItemDTO struct {
	LineID    uuid.UUID         `json:"lineId"`
	ProductID uuid.UUID         `json:"productId"`
	Name      string            `json:"name"`
	Price     json.Number       `json:"price"`
	Quantity  int               `json:"quantity"`
	Size      enums.ProductSize `json:"size"`
	Image     string            `json:"image,omitempty"`
	LineTotal json.Number       `json:"lineTotal"`
}

// CartDTO is the cart as returned to the shopper. Totals always come from
// the pricing engine.
type CartDTO struct {
	ID        *uuid.UUID       `json:"id,omitempty"`
	Items     []LineItemDTO    `json:"items"`
	Subtotal  json.Number      `json:"subtotal"`
	Tax       json.Number      `json:"tax"`
	Shipping  json.Number      `json:"shipping"`
	Total     json.Number      `json:"total"`
	ItemCount int              `json:"itemCount"`
	Status    enums.CartStatus `json:"status,omitempty"`
	UpdatedAt *time.Time       `json:"updatedAt,omitempty"`

	// Degraded is set when the cart store was unreachable and an empty
	// placeholder is returned instead.
	Degraded bool `json:"-"`
}

type CountDTO struct {
	ItemCount int `json:"itemCount"`
	LineCount int `json:"lineCount"`
}

// NewLineItemDTOs maps stored lines into response lines.
func NewLineItemDTOs(items types.LineItems) []LineItemDTO {
	out := make([]LineItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, LineItemDTO{
			LineID:    item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     money(item.Price),
			Quantity:  item.Quantity,
			Size:      item.Size,
			Image:     item.Image,
			LineTotal: money(pricing.Round(item.LineTotal())),
		})
	}
	return out
}

func NewCartDTO(cart *models.Cart) *CartDTO {
	id := cart.ID
	updated := cart.UpdatedAt
	return &CartDTO{
		ID:        &id,
		Items:     NewLineItemDTOs(cart.Items),
		Subtotal:  money(cart.Subtotal),
		Tax:       money(cart.Tax),
		Shipping:  money(cart.Shipping),
		Total:     money(cart.Total),
		ItemCount: cart.Items.TotalQuantity(),
		Status:    cart.Status,
		UpdatedAt: &updated,
	}
}

// EmptyCartDTO is served when the cart store is unavailable.
func EmptyCartDTO() *CartDTO {
	zero := pricing.ZeroTotals()
	return &CartDTO{
		Items:    []LineItemDTO{},
		Subtotal: money(zero.Subtotal),
		Tax:      money(zero.Tax),
		Shipping: money(zero.Shipping),
		Total:    money(zero.Total),
		Degraded: true,
	}
}

func money(d decimal.Decimal) json.Number {
	return json.Number(pricing.Format(d))
}
