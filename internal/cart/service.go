package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/db"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// maxWriteAttempts bounds how often a mutation reloads after losing the
// version compare-and-set to a concurrent writer.
const maxWriteAttempts = 3

// Service exposes the per-session cart operations.
type Service interface {
	Get(ctx context.Context, sessionID string) (*CartDTO, error)
	AddItem(ctx context.Context, sessionID string, input AddItemInput) (*CartDTO, error)
	UpdateQuantity(ctx context.Context, sessionID string, lineID uuid.UUID, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, sessionID string, lineID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, sessionID string) (*CartDTO, error)
	Count(ctx context.Context, sessionID string) (*CountDTO, error)
}

// AddItemInput is the add-to-cart payload.
type AddItemInput struct {
	ProductID uuid.UUID         `json:"productId" validate:"required"`
	Quantity  int               `json:"quantity" validate:"required,gte=1"`
	Size      enums.ProductSize `json:"size,omitempty" validate:"omitempty,oneof=small standard large bulk"`
}

type service struct {
	repo     CartRepository
	products productLoader
	engine   *pricing.Engine
	logg     *logger.Logger
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, products productLoader, engine *pricing.Engine, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if engine == nil {
		engine = pricing.NewEngine()
	}
	return &service{
		repo:     repo,
		products: products,
		engine:   engine,
		logg:     logg,
	}, nil
}

// Get returns the session's cart, creating it on first read. When the store
// is unreachable an empty placeholder cart is returned.
func (s *service) Get(ctx context.Context, sessionID string) (*CartDTO, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	cart, err := s.loadOrCreate(ctx, sessionID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStoreUnavailable) {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart store unavailable, serving empty cart")
			}
			return EmptyCartDTO(), nil
		}
		return nil, err
	}
	return NewCartDTO(cart), nil
}

func (s *service) AddItem(ctx context.Context, sessionID string, input AddItemInput) (*CartDTO, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	if input.Quantity < 1 {
		return nil, invalidQuantity(input.Quantity)
	}
	size, err := enums.ParseProductSize(input.Size.String())
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid size").
			WithDetails(map[string]any{"field": "size", "size": input.Size})
	}

	product, err := s.loadProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	cart, err := s.mutate(ctx, sessionID, func(cart *models.Cart) error {
		idx := cart.Items.FindVariant(product.ID, size)
		quantity := input.Quantity
		if idx >= 0 {
			quantity += cart.Items[idx].Quantity
		}
		if err := checkLineQuantity(product, size, quantity); err != nil {
			return err
		}
		if idx >= 0 {
			cart.Items[idx].Quantity = quantity
			return nil
		}
		cart.Items = append(cart.Items, types.LineItem{
			ID:        uuid.New(),
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.PriceFor(size),
			Quantity:  quantity,
			Size:      size,
			Image:     product.Images.First(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewCartDTO(cart), nil
}

// UpdateQuantity sets a line's quantity. Zero removes the line.
func (s *service) UpdateQuantity(ctx context.Context, sessionID string, lineID uuid.UUID, quantity int) (*CartDTO, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, invalidQuantity(quantity)
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, sessionID, lineID)
	}
	if quantity > pricing.MaxLineQuantity {
		return nil, itemLimit(quantity)
	}

	cart, err := s.mutate(ctx, sessionID, func(cart *models.Cart) error {
		idx := cart.Items.Find(lineID)
		if idx < 0 {
			return lineNotFound(lineID)
		}
		product, err := s.loadProduct(ctx, cart.Items[idx].ProductID)
		if err != nil {
			return err
		}
		if err := checkLineQuantity(product, cart.Items[idx].Size, quantity); err != nil {
			return err
		}
		cart.Items[idx].Quantity = quantity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewCartDTO(cart), nil
}

func (s *service) RemoveItem(ctx context.Context, sessionID string, lineID uuid.UUID) (*CartDTO, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	cart, err := s.mutate(ctx, sessionID, func(cart *models.Cart) error {
		idx := cart.Items.Find(lineID)
		if idx < 0 {
			return lineNotFound(lineID)
		}
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewCartDTO(cart), nil
}

// Clear empties the cart. Clearing an empty or missing cart succeeds.
func (s *service) Clear(ctx context.Context, sessionID string) (*CartDTO, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	cart, err := s.mutate(ctx, sessionID, func(cart *models.Cart) error {
		cart.Items = types.LineItems{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewCartDTO(cart), nil
}

func (s *service) Count(ctx context.Context, sessionID string) (*CountDTO, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	cart, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &CountDTO{}, nil
		}
		return nil, storeError(err, "load cart")
	}
	return &CountDTO{ItemCount: cart.Items.TotalQuantity(), LineCount: len(cart.Items)}, nil
}

// mutate runs a read-modify-write cycle guarded by the cart version. fn edits
// a private copy of the lines; totals are recomputed before the write.
func (s *service) mutate(ctx context.Context, sessionID string, fn func(cart *models.Cart) error) (*models.Cart, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		current, err := s.loadOrCreate(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		next := *current
		next.Items = current.Items.Clone()
		if err := fn(&next); err != nil {
			return nil, err
		}
		totals, err := s.engine.ComputeTotals(next.Items)
		if err != nil {
			return nil, err
		}
		next.Subtotal = totals.Subtotal
		next.Tax = totals.Tax
		next.Shipping = totals.Shipping
		next.Total = totals.Total
		next.Status = enums.CartStatusActive

		ok, err := s.repo.SaveIfVersion(ctx, &next, current.Version)
		if err != nil {
			return nil, storeError(err, "save cart")
		}
		if ok {
			next.Version = current.Version + 1
			return &next, nil
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{"attempt": attempt, "cart_id": current.ID.String()})
			s.logg.Warn(logCtx, "cart version conflict, retrying")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently, please retry")
}

func (s *service) loadOrCreate(ctx context.Context, sessionID string) (*models.Cart, error) {
	cart, err := s.repo.FindBySession(ctx, sessionID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storeError(err, "load cart")
	}

	zero := pricing.ZeroTotals()
	created, err := s.repo.Create(ctx, &models.Cart{
		SessionID: sessionID,
		Items:     types.LineItems{},
		Subtotal:  zero.Subtotal,
		Tax:       zero.Tax,
		Shipping:  zero.Shipping,
		Total:     zero.Total,
		Status:    enums.CartStatusActive,
		Version:   1,
	})
	if err == nil {
		return created, nil
	}
	if db.IsUniqueViolation(err, "") {
		// a concurrent first request created it
		cart, err = s.repo.FindBySession(ctx, sessionID)
		if err == nil {
			return cart, nil
		}
	}
	return nil, storeError(err, "create cart")
}

func (s *service) loadProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, storeError(err, "load product")
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func checkLineQuantity(product *models.Product, size enums.ProductSize, quantity int) error {
	if quantity > pricing.MaxLineQuantity {
		return itemLimit(quantity)
	}
	if available := product.StockFor(size); available < quantity {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "not enough stock for requested quantity").
			WithDetails(map[string]any{
				"productId": product.ID.String(),
				"size":      size,
				"requested": quantity,
				"available": available,
			})
	}
	return nil
}

func validateSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	return nil
}

func invalidQuantity(quantity int) error {
	return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity is not valid").
		WithDetails(map[string]any{"quantity": quantity})
}

func itemLimit(quantity int) error {
	return pkgerrors.New(pkgerrors.CodeItemLimit, fmt.Sprintf("a cart line cannot exceed %d units", pricing.MaxLineQuantity)).
		WithDetails(map[string]any{"quantity": quantity, "limit": pricing.MaxLineQuantity})
}

func lineNotFound(lineID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found").
		WithDetails(map[string]any{"lineId": lineID.String()})
}

func storeError(err error, msg string) error {
	if db.IsUnavailable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
