package product

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/pagination"
)

// Catalog sources reported to clients.
const (
	SourceDatabase = "database"
	SourceFallback = "fallback"
)

// ProductListFilters describe the supported filter knobs for the browse endpoint.
type ProductListFilters struct {
	Category *enums.ProductCategory
	Featured *bool
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
}

// ListProductsInput captures filters, ordering and the requested page.
type ListProductsInput struct {
	Filters    ProductListFilters
	SortBy     enums.ProductSortField
	SortDesc   bool
	Pagination pagination.Params
}

// normalizedSort applies the default ordering: newest first when the caller
// did not choose a field.
func (in ListProductsInput) normalizedSort() (enums.ProductSortField, bool) {
	if in.SortBy == "" {
		return enums.ProductSortCreatedAt, true
	}
	return in.SortBy, in.SortDesc
}

// ProductListResult is the paginated browse response.
type ProductListResult struct {
	Products   []ProductDTO    `json:"products"`
	Pagination pagination.Meta `json:"pagination"`
	Source     string          `json:"source"`
}
