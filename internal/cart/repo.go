package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// Repository persists one cart row per session.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindBySession(ctx context.Context, sessionID string) (*models.Cart, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&cart).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts a new empty cart at version 1.
func (r *Repository) Create(ctx context.Context, cart *models.Cart) (*models.Cart, error) {
	if cart.Status == "" {
		cart.Status = enums.CartStatusActive
	}
	if cart.Version == 0 {
		cart.Version = 1
	}
	if cart.Items == nil {
		cart.Items = types.LineItems{}
	}
	if err := r.db.WithContext(ctx).Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

// SaveIfVersion writes the cart snapshot only if the stored version still
// equals expectedVersion, bumping it by one. It reports whether the write won.
func (r *Repository) SaveIfVersion(ctx context.Context, cart *models.Cart, expectedVersion int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ? AND version = ?", cart.ID, expectedVersion).
		Updates(map[string]any{
			"items":      cart.Items,
			"subtotal":   cart.Subtotal,
			"tax":        cart.Tax,
			"shipping":   cart.Shipping,
			"total":      cart.Total,
			"status":     cart.Status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClearAndConvert empties the session's cart and marks it converted. It is
// called inside the payment transaction and is a no-op when the session has
// no cart.
func (r *Repository) ClearAndConvert(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"items":      types.LineItems{},
			"subtotal":   decimal.Zero,
			"tax":        decimal.Zero,
			"shipping":   decimal.Zero,
			"total":      decimal.Zero,
			"status":     enums.CartStatusConverted,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

// DeleteIdleBefore removes carts not touched since cutoff.
func (r *Repository) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&models.Cart{})
	return res.RowsAffected, res.Error
}
