package product

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// FallbackCatalog serves a fixed read-only catalog while Postgres is
// unreachable. Ids match the rows inserted by the seed migration so links
// stay valid once the database is back.
type FallbackCatalog struct {
	products []models.Product
}

func NewFallbackCatalog() *FallbackCatalog {
	return &FallbackCatalog{products: fallbackProducts()}
}

func fallbackProducts() []models.Product {
	strain := func(s string) *string { return &s }
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	return []models.Product{
		{
			ID:             uuid.MustParse("00000000-0000-4000-8000-000000000001"),
			Name:           "Golden Teacher Spores",
			Description:    "Classic strain perfect for beginners. Known for its golden caps and educational growing experience.",
			Price:          decimal.RequireFromString("25.99"),
			Category:       enums.ProductCategorySpores,
			Strain:         strain("Golden Teacher"),
			Images:         types.ProductImages{{URL: "/assets/golden-teacher.jpg"}},
			Stock:          50,
			Featured:       true,
			Active:         true,
			Specifications: types.Specifications{"difficulty": "Beginner", "potency": "Medium", "origin": "Colombia"},
			CreatedAt:      day(2024, time.January, 15),
		},
		{
			ID:             uuid.MustParse("00000000-0000-4000-8000-000000000002"),
			Name:           "Blue Meanie Spores",
			Description:    "Potent strain with distinctive blue bruising. Fast colonization and heavy yields.",
			Price:          decimal.RequireFromString("32.99"),
			Category:       enums.ProductCategorySpores,
			Strain:         strain("Blue Meanie"),
			Images:         types.ProductImages{{URL: "/assets/blue-meanie.jpg"}},
			Stock:          30,
			Featured:       true,
			Active:         true,
			Specifications: types.Specifications{"difficulty": "Intermediate", "potency": "High", "origin": "Australia"},
			CreatedAt:      day(2024, time.January, 20),
		},
		{
			ID:             uuid.MustParse("00000000-0000-4000-8000-000000000003"),
			Name:           "Penis Envy Spores",
			Description:    "Unique appearance with thick stems and small caps. One of the most sought-after strains.",
			Price:          decimal.RequireFromString("45.99"),
			Category:       enums.ProductCategorySpores,
			Strain:         strain("Penis Envy"),
			Images:         types.ProductImages{{URL: "/assets/penis-envy.jpg"}},
			Stock:          20,
			Featured:       true,
			Active:         true,
			Specifications: types.Specifications{"difficulty": "Advanced", "potency": "Very High", "origin": "USA"},
			CreatedAt:      day(2024, time.January, 25),
		},
		{
			ID:             uuid.MustParse("00000000-0000-4000-8000-000000000004"),
			Name:           "Beginner Grow Kit",
			Description:    "Complete kit with everything needed to start growing. Includes substrate, spores, and instructions.",
			Price:          decimal.RequireFromString("89.99"),
			Category:       enums.ProductCategoryGrowKits,
			Images:         types.ProductImages{{URL: "/assets/grow-kit.jpg"}},
			Stock:          15,
			Active:         true,
			Specifications: types.Specifications{"includes": "Substrate, Spores, Instructions, Spray Bottle", "difficulty": "Beginner", "yield": "100-200g fresh"},
			CreatedAt:      day(2024, time.February, 1),
		},
		{
			ID:             uuid.MustParse("00000000-0000-4000-8000-000000000005"),
			Name:           "Sterilized Substrate",
			Description:    "Pre-sterilized growing medium ready for inoculation. Made from organic materials.",
			Price:          decimal.RequireFromString("19.99"),
			Category:       enums.ProductCategorySupplies,
			Images:         types.ProductImages{{URL: "/assets/substrate.jpg"}},
			Stock:          40,
			Active:         true,
			Specifications: types.Specifications{"volume": "2.5 lbs", "sterilized": "true", "ingredients": "Vermiculite, Brown Rice Flour, Water"},
			CreatedAt:      day(2024, time.February, 5),
		},
	}
}

// FindByID returns a copy of the product or gorm.ErrRecordNotFound.
func (f *FallbackCatalog) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			out := p
			return &out, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// List applies the same filters and ordering as the database repository.
func (f *FallbackCatalog) List(_ context.Context, input ListProductsInput) ([]models.Product, int64, error) {
	matches := make([]models.Product, 0, len(f.products))
	for _, p := range f.products {
		if matchesFilters(p, input.Filters) {
			matches = append(matches, p)
		}
	}

	field, desc := input.normalizedSort()
	sort.SliceStable(matches, func(i, j int) bool {
		less, equal := compareProducts(matches[i], matches[j], field)
		if equal {
			return false
		}
		if desc {
			return !less
		}
		return less
	})

	total := int64(len(matches))
	page := input.Pagination.Normalize()
	start := page.Offset()
	if start >= len(matches) {
		return []models.Product{}, total, nil
	}
	end := start + page.Limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], total, nil
}

func (f *FallbackCatalog) ListCategories(_ context.Context) ([]enums.ProductCategory, error) {
	raw := make([]string, 0, len(f.products))
	for _, p := range f.products {
		if p.Active {
			raw = append(raw, p.Category.String())
		}
	}
	return orderCategories(raw), nil
}

func matchesFilters(p models.Product, filters ProductListFilters) bool {
	if !p.Active {
		return false
	}
	if filters.Category != nil && p.Category != *filters.Category {
		return false
	}
	if filters.Featured != nil && p.Featured != *filters.Featured {
		return false
	}
	if filters.MinPrice != nil && p.Price.LessThan(*filters.MinPrice) {
		return false
	}
	if filters.MaxPrice != nil && p.Price.GreaterThan(*filters.MaxPrice) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(filters.Search)); term != "" {
		strain := ""
		if p.Strain != nil {
			strain = *p.Strain
		}
		if !strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(strings.ToLower(p.Description), term) &&
			!strings.Contains(strings.ToLower(strain), term) {
			return false
		}
	}
	return true
}

func compareProducts(a, b models.Product, field enums.ProductSortField) (less bool, equal bool) {
	switch field {
	case enums.ProductSortPrice:
		return a.Price.LessThan(b.Price), a.Price.Equal(b.Price)
	case enums.ProductSortName:
		return a.Name < b.Name, a.Name == b.Name
	case enums.ProductSortRatings:
		return a.Ratings.Average < b.Ratings.Average, a.Ratings.Average == b.Ratings.Average
	default:
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	}
}
