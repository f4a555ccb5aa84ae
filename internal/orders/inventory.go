package orders

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	product "github.com/angelmondragon/mycoshop-backend/internal/products"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

type catalogInventory struct{}

// NewInventoryKeeper returns the catalog-backed stock keeper. Every call runs
// against the transaction it is given.
func NewInventoryKeeper() InventoryKeeper {
	return catalogInventory{}
}

// Verify checks that every product in items is active and holds enough
// stock. Sizes with their own stock count are checked on their own; all
// other sizes of a product share the product stock.
func (catalogInventory) Verify(ctx context.Context, tx *gorm.DB, items types.LineItems) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	products, err := product.NewRepository(tx).FindByIDs(ctx, productIDs(items))
	if err != nil {
		return err
	}
	demand := demandByStock(items, products)
	for _, line := range items {
		row, ok := products[line.ProductID]
		key := stockKeyFor(row, line)
		requested := demand[key]
		available := 0
		if ok && row.Active {
			available = row.StockFor(line.Size)
		}
		if available < requested {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for "+line.Name).
				WithDetails(map[string]any{
					"lineId":    line.ID.String(),
					"productId": line.ProductID.String(),
					"name":      line.Name,
					"size":      line.Size,
					"requested": requested,
					"available": available,
				})
		}
	}
	return nil
}

// Decrement consumes stock for items. Any shortfall aborts with
// InsufficientStock and the caller's transaction rolls back.
func (catalogInventory) Decrement(ctx context.Context, tx *gorm.DB, items types.LineItems) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	repo := product.NewRepository(tx)
	products, err := repo.FindByIDs(ctx, productIDs(items))
	if err != nil {
		return err
	}
	demand := demandByStock(items, products)
	keys := make([]stockKey, 0, len(demand))
	for key := range demand {
		keys = append(keys, key)
	}
	// fixed lock order across concurrent payments
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].productID != keys[j].productID {
			return keys[i].productID.String() < keys[j].productID.String()
		}
		return keys[i].size < keys[j].size
	})

	for _, key := range keys {
		if key.size == "" {
			err = repo.DecrementStock(ctx, key.productID, demand[key])
		} else {
			err = repo.DecrementSizeStock(ctx, key.productID, key.size, demand[key])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// stockKey names one stock counter: the product row, or a size that keeps
// its own count.
type stockKey struct {
	productID uuid.UUID
	size      enums.ProductSize
}

func stockKeyFor(row models.Product, line types.LineItem) stockKey {
	if variant, ok := row.Sizes.Lookup(line.Size.String()); ok && variant.HasStock() {
		return stockKey{productID: line.ProductID, size: line.Size}
	}
	return stockKey{productID: line.ProductID}
}

func demandByStock(items types.LineItems, products map[uuid.UUID]models.Product) map[stockKey]int {
	out := make(map[stockKey]int, len(items))
	for _, line := range items {
		out[stockKeyFor(products[line.ProductID], line)] += line.Quantity
	}
	return out
}

func productIDs(items types.LineItems) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, line := range items {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}
