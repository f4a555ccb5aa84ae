package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// Order is the frozen financial record created from a cart at checkout.
// Items and totals are never recomputed after insert.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     string                `gorm:"column:order_number;not null;uniqueIndex"`
	SessionID       string                `gorm:"column:session_id;not null;index"`
	Items           types.LineItems       `gorm:"column:items;type:jsonb;not null"`
	Subtotal        decimal.Decimal       `gorm:"column:subtotal;type:numeric(10,2);not null"`
	Tax             decimal.Decimal       `gorm:"column:tax;type:numeric(10,2);not null"`
	Shipping        decimal.Decimal       `gorm:"column:shipping;type:numeric(10,2);not null"`
	Total           decimal.Decimal       `gorm:"column:total;type:numeric(10,2);not null"`
	ShippingAddress types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;not null"`
	PaymentMethod   enums.PaymentMethod   `gorm:"column:payment_method;not null"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;not null;default:'pending'"`
	TransactionID   *string               `gorm:"column:transaction_id"`
	PaymentDetails  types.PaymentDetails  `gorm:"column:payment_details;type:jsonb;not null"`
	Status          enums.OrderStatus     `gorm:"column:status;not null;default:'pending'"`
	StatusHistory   types.StatusHistory   `gorm:"column:status_history;type:jsonb;not null"`
	Tracking        types.Tracking        `gorm:"column:tracking;type:jsonb;not null"`
	Notes           *string               `gorm:"column:notes"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
