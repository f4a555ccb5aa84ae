package product

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

// ProductRepository defines the catalog persistence surface.
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	List(ctx context.Context, input ListProductsInput) ([]models.Product, int64, error)
	ListCategories(ctx context.Context) ([]enums.ProductCategory, error)
	CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) error
}

// Repository is the gorm-backed catalog store.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// FindByID loads the product. Inactive products are returned too; callers
// decide whether they are usable.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads a set of products keyed by id. Missing ids are simply absent.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// List returns one page of active products matching the filters plus the
// total number of matches.
func (r *Repository) List(ctx context.Context, input ListProductsInput) ([]models.Product, int64, error) {
	query := r.applyFilters(r.db.WithContext(ctx).Model(&models.Product{}), input.Filters)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := input.Pagination.Normalize()
	var rows []models.Product
	err := query.
		Order(r.orderClause(input)).
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *Repository) applyFilters(query *gorm.DB, filters ProductListFilters) *gorm.DB {
	query = query.Where("active = ?", true)
	if filters.Category != nil {
		query = query.Where("category = ?", *filters.Category)
	}
	if filters.Featured != nil {
		query = query.Where("featured = ?", *filters.Featured)
	}
	if filters.MinPrice != nil {
		query = query.Where("price >= ?", *filters.MinPrice)
	}
	if filters.MaxPrice != nil {
		query = query.Where("price <= ?", *filters.MaxPrice)
	}
	if term := strings.ToLower(strings.TrimSpace(filters.Search)); term != "" {
		like := "%" + escapeLike(term) + "%"
		query = query.Where(
			"(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(strain, '')) LIKE ? ESCAPE '\\')",
			like, like, like,
		)
	}
	return query
}

func (r *Repository) orderClause(input ListProductsInput) string {
	field, desc := input.normalizedSort()
	column := "created_at"
	switch field {
	case enums.ProductSortPrice:
		column = "price"
	case enums.ProductSortName:
		column = "name"
	case enums.ProductSortRatings:
		column = r.ratingsExpr()
	}
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	return fmt.Sprintf("%s %s", column, direction)
}

func (r *Repository) ratingsExpr() string {
	if r.db.Dialector != nil && r.db.Dialector.Name() == "sqlite" {
		return "CAST(json_extract(ratings, '$.average') AS REAL)"
	}
	return "COALESCE((ratings->>'average')::numeric, 0)"
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

// ListCategories returns the distinct categories of active products.
func (r *Repository) ListCategories(ctx context.Context) ([]enums.ProductCategory, error) {
	var raw []string
	if err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("active = ?", true).
		Distinct("category").
		Pluck("category", &raw).Error; err != nil {
		return nil, err
	}
	return orderCategories(raw), nil
}

func orderCategories(raw []string) []enums.ProductCategory {
	present := make(map[string]struct{}, len(raw))
	for _, c := range raw {
		present[c] = struct{}{}
	}
	out := []enums.ProductCategory{}
	for _, c := range enums.ProductCategories() {
		if _, ok := present[c.String()]; ok {
			out = append(out, c)
		}
	}
	return out
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateProduct updates an existing product row.
func (r *Repository) UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Save(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// Deactivate hides a product from the catalog without deleting it; orders
// keep referencing the row.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementStock subtracts qty from the product's stock. The guard keeps
// stock non-negative under concurrent checkouts.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"productId": id.String(), "requested": qty})
	}
	return nil
}

// DecrementSizeStock consumes qty from a size that keeps its own stock
// count. Sizes without one fall through to DecrementStock. On postgres the
// product row is locked for the rest of the caller's transaction.
func (r *Repository) DecrementSizeStock(ctx context.Context, id uuid.UUID, size enums.ProductSize, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row models.Product
	if err := query.Select("id", "sizes").First(&row, "id = ?", id).Error; err != nil {
		return err
	}

	sizes := row.Sizes.Clone()
	for i := range sizes {
		if sizes[i].Size != size.String() || !sizes[i].HasStock() {
			continue
		}
		if *sizes[i].Stock < qty {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
				WithDetails(map[string]any{"productId": id.String(), "size": size, "requested": qty, "available": *sizes[i].Stock})
		}
		*sizes[i].Stock -= qty
		return r.db.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", id).
			UpdateColumn("sizes", sizes).Error
	}
	return r.DecrementStock(ctx, id, qty)
}
