package enums

import (
	"fmt"
	"strings"
)

// ProductCategory represents the canonical product categories supported by the catalog.
type ProductCategory string

const (
	ProductCategorySpores      ProductCategory = "spores"
	ProductCategoryGrowKits    ProductCategory = "growkits"
	ProductCategorySupplies    ProductCategory = "supplies"
	ProductCategoryAccessories ProductCategory = "accessories"
)

var validProductCategories = []ProductCategory{
	ProductCategorySpores,
	ProductCategoryGrowKits,
	ProductCategorySupplies,
	ProductCategoryAccessories,
}

// ProductCategories returns the categories in display order.
func ProductCategories() []ProductCategory {
	out := make([]ProductCategory, len(validProductCategories))
	copy(out, validProductCategories)
	return out
}

// String implements fmt.Stringer.
func (c ProductCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ProductCategory.
func (c ProductCategory) IsValid() bool {
	for _, candidate := range validProductCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	for _, candidate := range validProductCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product category %q", value)
}

// ProductSize is the size variant a shopper picks for a line item.
type ProductSize string

const (
	ProductSizeSmall    ProductSize = "small"
	ProductSizeStandard ProductSize = "standard"
	ProductSizeLarge    ProductSize = "large"
	ProductSizeBulk     ProductSize = "bulk"
)

var validProductSizes = []ProductSize{
	ProductSizeSmall,
	ProductSizeStandard,
	ProductSizeLarge,
	ProductSizeBulk,
}

// String implements fmt.Stringer.
func (s ProductSize) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProductSize.
func (s ProductSize) IsValid() bool {
	for _, candidate := range validProductSizes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseProductSize converts raw input into a ProductSize. Empty input means standard.
func ParseProductSize(value string) (ProductSize, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return ProductSizeStandard, nil
	}
	for _, candidate := range validProductSizes {
		if string(candidate) == trimmed {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product size %q", value)
}

// ProductSortField is the catalog ordering requested by clients.
type ProductSortField string

const (
	ProductSortCreatedAt ProductSortField = "createdAt"
	ProductSortPrice     ProductSortField = "price"
	ProductSortName      ProductSortField = "name"
	ProductSortRatings   ProductSortField = "ratings"
)

var validProductSortFields = []ProductSortField{
	ProductSortCreatedAt,
	ProductSortPrice,
	ProductSortName,
	ProductSortRatings,
}

// IsValid reports whether the value is a known ProductSortField.
func (f ProductSortField) IsValid() bool {
	for _, candidate := range validProductSortFields {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseProductSortField converts raw input into a ProductSortField. Empty input means createdAt.
func ParseProductSortField(value string) (ProductSortField, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ProductSortCreatedAt, nil
	}
	for _, candidate := range validProductSortFields {
		if string(candidate) == trimmed {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sort field %q", value)
}
