package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// Product is a catalog listing. Stock is guarded by a CHECK (stock >= 0).
type Product struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string                `gorm:"column:name;not null"`
	Description    string                `gorm:"column:description;not null"`
	Price          decimal.Decimal       `gorm:"column:price;type:numeric(10,2);not null"`
	Category       enums.ProductCategory `gorm:"column:category;not null"`
	Strain         *string               `gorm:"column:strain"`
	Images         types.ProductImages   `gorm:"column:images;type:jsonb;not null"`
	Stock          int                   `gorm:"column:stock;not null;default:0"`
	Sizes          types.ProductSizes    `gorm:"column:sizes;type:jsonb;not null"`
	Featured       bool                  `gorm:"column:featured;not null;default:false"`
	Active         bool                  `gorm:"column:active;not null"`
	Ratings        types.Ratings         `gorm:"column:ratings;type:jsonb;not null"`
	Specifications types.Specifications  `gorm:"column:specifications;type:jsonb;not null"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PriceFor returns the unit price for size.
func (p Product) PriceFor(size enums.ProductSize) decimal.Decimal {
	if variant, ok := p.Sizes.Lookup(size.String()); ok && variant.Price.IsPositive() {
		return variant.Price
	}
	return p.Price
}

// StockFor returns the units available in size. A variant with its own
// stock count overrides the product stock.
func (p Product) StockFor(size enums.ProductSize) int {
	if variant, ok := p.Sizes.Lookup(size.String()); ok && variant.HasStock() {
		return *variant.Stock
	}
	return p.Stock
}

// InStock reports whether any size can still be sold.
func (p Product) InStock() bool {
	if p.Stock > 0 {
		return true
	}
	for _, variant := range p.Sizes {
		if variant.HasStock() && *variant.Stock > 0 {
			return true
		}
	}
	return false
}
