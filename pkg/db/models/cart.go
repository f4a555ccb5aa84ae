package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// Cart is the single cart of a session. Version increments on every write
// and guards read-modify-write cycles.
type Cart struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID string           `gorm:"column:session_id;not null;uniqueIndex"`
	Items     types.LineItems  `gorm:"column:items;type:jsonb;not null"`
	Subtotal  decimal.Decimal  `gorm:"column:subtotal;type:numeric(10,2);not null"`
	Tax       decimal.Decimal  `gorm:"column:tax;type:numeric(10,2);not null"`
	Shipping  decimal.Decimal  `gorm:"column:shipping;type:numeric(10,2);not null"`
	Total     decimal.Decimal  `gorm:"column:total;type:numeric(10,2);not null"`
	Status    enums.CartStatus `gorm:"column:status;not null;default:'active'"`
	Version   int              `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
