package product

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// ProductDTO is the public representation of a catalog product.
type ProductDTO struct {
	ID             uuid.UUID             `json:"id"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	Price          json.Number           `json:"price"`
	Category       enums.ProductCategory `json:"category"`
	Strain         *string               `json:"strain,omitempty"`
	Images         types.ProductImages   `json:"images"`
	Stock          int                   `json:"stock"`
	InStock        bool                  `json:"inStock"`
	Sizes          []SizeDTO             `json:"sizes"`
	Featured       bool                  `json:"featured"`
	Active         bool                  `json:"active"`
	Ratings        types.Ratings         `json:"ratings"`
	Specifications types.Specifications  `json:"specifications"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

type SizeDTO struct {
	Size  string      `json:"size"`
	Price json.Number `json:"price"`
	Stock *int        `json:"stock,omitempty"`
}

// NewProductDTO maps a product row into its response shape.
func NewProductDTO(p *models.Product) ProductDTO {
	sizes := make([]SizeDTO, 0, len(p.Sizes))
	for _, variant := range p.Sizes {
		sizes = append(sizes, SizeDTO{
			Size:  variant.Size,
			Price: json.Number(pricing.Format(variant.Price)),
			Stock: variant.Stock,
		})
	}
	images := p.Images
	if images == nil {
		images = types.ProductImages{}
	}
	specs := p.Specifications
	if specs == nil {
		specs = types.Specifications{}
	}
	return ProductDTO{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          json.Number(pricing.Format(p.Price)),
		Category:       p.Category,
		Strain:         p.Strain,
		Images:         images,
		Stock:          p.Stock,
		InStock:        p.InStock(),
		Sizes:          sizes,
		Featured:       p.Featured,
		Active:         p.Active,
		Ratings:        p.Ratings,
		Specifications: specs,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func newProductDTOs(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewProductDTO(&rows[i]))
	}
	return out
}
