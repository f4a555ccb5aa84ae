package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mycoshop-backend/internal/cart"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/pagination"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// OrderDTO is the API representation of an order.
type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	Items           []cart.LineItemDTO    `json:"items"`
	Subtotal        json.Number           `json:"subtotal"`
	Tax             json.Number           `json:"tax"`
	Shipping        json.Number           `json:"shipping"`
	Total           json.Number           `json:"total"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod"`
	PaymentStatus   enums.PaymentStatus   `json:"paymentStatus"`
	TransactionID   *string               `json:"transactionId,omitempty"`
	PaymentDetails  *types.PaymentDetails `json:"paymentDetails,omitempty"`
	Status          enums.OrderStatus     `json:"status"`
	StatusHistory   types.StatusHistory   `json:"statusHistory"`
	Tracking        *types.Tracking       `json:"tracking,omitempty"`
	Notes           *string               `json:"notes,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// OrderList is a page of orders.
type OrderList struct {
	Orders     []OrderDTO      `json:"orders"`
	Pagination pagination.Meta `json:"pagination"`
}

func NewOrderDTO(order *models.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Items:           cart.NewLineItemDTOs(order.Items),
		Subtotal:        json.Number(pricing.Format(order.Subtotal)),
		Tax:             json.Number(pricing.Format(order.Tax)),
		Shipping:        json.Number(pricing.Format(order.Shipping)),
		Total:           json.Number(pricing.Format(order.Total)),
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		TransactionID:   order.TransactionID,
		Status:          order.Status,
		StatusHistory:   order.StatusHistory,
		Notes:           order.Notes,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	if dto.StatusHistory == nil {
		dto.StatusHistory = types.StatusHistory{}
	}
	if order.PaymentDetails != (types.PaymentDetails{}) {
		details := order.PaymentDetails
		dto.PaymentDetails = &details
	}
	if !order.Tracking.IsZero() {
		tracking := order.Tracking
		dto.Tracking = &tracking
	}
	return dto
}

func newOrderList(rows []models.Order, params pagination.Params, total int64) *OrderList {
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewOrderDTO(&rows[i]))
	}
	return &OrderList{
		Orders:     out,
		Pagination: pagination.NewMeta(params, total),
	}
}
