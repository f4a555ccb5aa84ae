package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/db"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/pagination"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// Service exposes catalog reads and admin writes.
type Service interface {
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductResult, error)
	ListCategories(ctx context.Context) (*CategoryResult, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

type ProductResult struct {
	Product ProductDTO `json:"product"`
	Source  string     `json:"source"`
}

type CategoryResult struct {
	Categories []enums.ProductCategory `json:"categories"`
	Source     string                  `json:"source"`
}

// CreateProductInput is the admin payload for a new listing.
type CreateProductInput struct {
	Name           string                `json:"name" validate:"required,max=200"`
	Description    string                `json:"description" validate:"required,max=2000"`
	Price          decimal.Decimal       `json:"price"`
	Category       enums.ProductCategory `json:"category" validate:"required,oneof=spores growkits supplies accessories"`
	Strain         *string               `json:"strain,omitempty" validate:"omitempty,max=100"`
	Images         types.ProductImages   `json:"images" validate:"omitempty,max=10,dive"`
	Stock          int                   `json:"stock" validate:"gte=0"`
	Sizes          types.ProductSizes    `json:"sizes" validate:"omitempty,max=4,dive"`
	Featured       bool                  `json:"featured"`
	Active         *bool                 `json:"active,omitempty"`
	Specifications types.Specifications  `json:"specifications"`
}

// UpdateProductInput carries partial updates; nil fields are left untouched.
type UpdateProductInput struct {
	Name           *string                `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description    *string                `json:"description,omitempty" validate:"omitempty,min=1,max=2000"`
	Price          *decimal.Decimal       `json:"price,omitempty"`
	Category       *enums.ProductCategory `json:"category,omitempty" validate:"omitempty,oneof=spores growkits supplies accessories"`
	Strain         *string                `json:"strain,omitempty" validate:"omitempty,max=100"`
	Images         *types.ProductImages   `json:"images,omitempty" validate:"omitempty,max=10,dive"`
	Stock          *int                   `json:"stock,omitempty" validate:"omitempty,gte=0"`
	Sizes          *types.ProductSizes    `json:"sizes,omitempty" validate:"omitempty,max=4,dive"`
	Featured       *bool                  `json:"featured,omitempty"`
	Active         *bool                  `json:"active,omitempty"`
	Specifications *types.Specifications  `json:"specifications,omitempty"`
}

type catalogReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, input ListProductsInput) ([]models.Product, int64, error)
	ListCategories(ctx context.Context) ([]enums.ProductCategory, error)
}

type service struct {
	repo     ProductRepository
	fallback catalogReader
	logg     *logger.Logger
}

// NewService builds the catalog service. fallback serves reads when the
// repository reports the store unreachable.
func NewService(repo ProductRepository, fallback catalogReader, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if fallback == nil {
		fallback = NewFallbackCatalog()
	}
	return &service{repo: repo, fallback: fallback, logg: logg}, nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	input.Pagination = input.Pagination.Normalize()
	if err := validatePriceRange(input.Filters); err != nil {
		return nil, err
	}

	source := SourceDatabase
	rows, total, err := s.repo.List(ctx, input)
	if err != nil {
		if !db.IsUnavailable(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
		}
		s.degraded(ctx, "list products", err)
		source = SourceFallback
		if rows, total, err = s.fallback.List(ctx, input); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list fallback products")
		}
	}

	return &ProductListResult{
		Products:   newProductDTOs(rows),
		Pagination: pagination.NewMeta(input.Pagination, total),
		Source:     source,
	}, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductResult, error) {
	source := SourceDatabase
	product, err := s.repo.FindByID(ctx, id)
	if err != nil && db.IsUnavailable(err) {
		s.degraded(ctx, "get product", err)
		source = SourceFallback
		product, err = s.fallback.FindByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return &ProductResult{Product: NewProductDTO(product), Source: source}, nil
}

func (s *service) ListCategories(ctx context.Context) (*CategoryResult, error) {
	source := SourceDatabase
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		if !db.IsUnavailable(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
		}
		s.degraded(ctx, "list categories", err)
		source = SourceFallback
		if categories, err = s.fallback.ListCategories(ctx); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list fallback categories")
		}
	}
	return &CategoryResult{Categories: categories, Source: source}, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	if err := validateMoney("price", input.Price); err != nil {
		return nil, err
	}
	if err := validateSizes(input.Sizes); err != nil {
		return nil, err
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	product := &models.Product{
		Name:           strings.TrimSpace(input.Name),
		Description:    strings.TrimSpace(input.Description),
		Price:          input.Price.Round(2),
		Category:       input.Category,
		Strain:         trimmedPtr(input.Strain),
		Images:         input.Images,
		Stock:          input.Stock,
		Sizes:          input.Sizes,
		Featured:       input.Featured,
		Active:         active,
		Specifications: input.Specifications,
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, storeError(err, "create product")
	}
	dto := NewProductDTO(created)
	return &dto, nil
}

func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	if input.Price != nil {
		if err := validateMoney("price", *input.Price); err != nil {
			return nil, err
		}
	}
	if input.Sizes != nil {
		if err := validateSizes(*input.Sizes); err != nil {
			return nil, err
		}
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, storeError(err, "load product")
	}
	applyUpdateToProduct(product, input)
	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, storeError(err, "update product")
	}
	dto := NewProductDTO(updated)
	return &dto, nil
}

func (s *service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return storeError(err, "delete product")
	}
	return nil
}

func (s *service) degraded(ctx context.Context, op string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"operation": op, "error": err.Error()})
	s.logg.Warn(ctx, "catalog store unavailable, serving fallback catalog")
}

func storeError(err error, msg string) error {
	if db.IsUnavailable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func applyUpdateToProduct(product *models.Product, input UpdateProductInput) {
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		product.Description = strings.TrimSpace(*input.Description)
	}
	if input.Price != nil {
		product.Price = input.Price.Round(2)
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.Strain != nil {
		product.Strain = trimmedPtr(input.Strain)
	}
	if input.Images != nil {
		product.Images = append(types.ProductImages{}, (*input.Images)...)
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.Sizes != nil {
		product.Sizes = input.Sizes.Clone()
	}
	if input.Featured != nil {
		product.Featured = *input.Featured
	}
	if input.Active != nil {
		product.Active = *input.Active
	}
	if input.Specifications != nil {
		specs := types.Specifications{}
		for k, v := range *input.Specifications {
			specs[k] = v
		}
		product.Specifications = specs
	}
}

func validateMoney(field string, value decimal.Decimal) error {
	if value.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be non-negative", field)).
			WithDetails(map[string]any{"field": field})
	}
	return nil
}

func validateSizes(sizes types.ProductSizes) error {
	seen := map[string]struct{}{}
	for _, variant := range sizes {
		if _, err := enums.ParseProductSize(variant.Size); err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid size").
				WithDetails(map[string]any{"field": "sizes", "size": variant.Size})
		}
		if _, dup := seen[variant.Size]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate size").
				WithDetails(map[string]any{"field": "sizes", "size": variant.Size})
		}
		seen[variant.Size] = struct{}{}
		if err := validateMoney("sizes.price", variant.Price); err != nil {
			return err
		}
		if variant.HasStock() && *variant.Stock < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "size stock must not be negative").
				WithDetails(map[string]any{"field": "sizes.stock", "size": variant.Size})
		}
	}
	return nil
}

func validatePriceRange(filters ProductListFilters) error {
	if filters.MinPrice != nil && filters.MaxPrice != nil && filters.MinPrice.GreaterThan(*filters.MaxPrice) {
		return pkgerrors.New(pkgerrors.CodeValidation, "minPrice must not exceed maxPrice").
			WithDetails(map[string]any{"field": "minPrice"})
	}
	return nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
