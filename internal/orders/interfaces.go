package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
	"github.com/angelmondragon/mycoshop-backend/pkg/pagination"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListBySession(ctx context.Context, sessionID string, params pagination.Params) ([]models.Order, int64, error)
	ListAll(ctx context.Context, filters AdminOrderFilters, params pagination.Params) ([]models.Order, int64, error)
	UpdateIf(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error)
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// Guard is the compare-and-set precondition of UpdateIf. Empty slices match
// any value.
type Guard struct {
	Statuses        []enums.OrderStatus
	PaymentStatuses []enums.PaymentStatus
}

// AdminOrderFilters narrows the operator order listing.
type AdminOrderFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	SessionID     string
}

// InventoryKeeper verifies and consumes product stock inside a transaction.
type InventoryKeeper interface {
	Verify(ctx context.Context, tx *gorm.DB, items types.LineItems) error
	Decrement(ctx context.Context, tx *gorm.DB, items types.LineItems) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
