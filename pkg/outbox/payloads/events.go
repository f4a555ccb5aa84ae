package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// EventItem is the frozen line snapshot carried by order events.
type EventItem struct {
	ProductID uuid.UUID         `json:"product_id"`
	Name      string            `json:"name"`
	Size      enums.ProductSize `json:"size"`
	Quantity  int               `json:"quantity"`
	UnitPrice decimal.Decimal   `json:"unit_price"`
	LineTotal decimal.Decimal   `json:"line_total"`
}

// ItemsFrom snapshots order lines for an event payload.
func ItemsFrom(lines types.LineItems) []EventItem {
	items := make([]EventItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, EventItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Size:      line.Size,
			Quantity:  line.Quantity,
			UnitPrice: line.Price,
			LineTotal: line.LineTotal().Round(2),
		})
	}
	return items
}

// OrderCreatedEvent is emitted when a cart snapshot becomes a pending order.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	SessionID     string              `json:"session_id"`
	ItemCount     int                 `json:"item_count"`
	Items         []EventItem         `json:"items"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Tax           decimal.Decimal     `json:"tax"`
	Shipping      decimal.Decimal     `json:"shipping"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Email         string              `json:"email,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// OrderPaidEvent is emitted once a gateway reports a completed payment.
type OrderPaidEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	SessionID     string              `json:"session_id"`
	Items         []EventItem         `json:"items"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Tax           decimal.Decimal     `json:"tax"`
	Shipping      decimal.Decimal     `json:"shipping"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TransactionID string              `json:"transaction_id"`
	Email         string              `json:"email,omitempty"`
	CustomerName  string              `json:"customer_name,omitempty"`
	PaidAt        time.Time           `json:"paid_at"`
}

type PaymentFailedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Reason        string              `json:"reason,omitempty"`
	FailedAt      time.Time           `json:"failed_at"`
}

// PaymentRefundedEvent is emitted when a completed payment is refunded.
// Status is the fulfillment status at the time of the refund.
type PaymentRefundedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Status        enums.OrderStatus   `json:"status"`
	TransactionID string              `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	Reason        string              `json:"reason,omitempty"`
	RefundedAt    time.Time           `json:"refunded_at"`
}

type OrderCanceledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Reason      string    `json:"reason,omitempty"`
	CanceledAt  time.Time `json:"canceled_at"`
}

// OrderStateChangedEvent records fulfillment transitions made by operators.
type OrderStateChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Status         enums.OrderStatus `json:"status"`
	Note           string            `json:"note,omitempty"`
	ChangedAt      time.Time         `json:"changed_at"`
}
