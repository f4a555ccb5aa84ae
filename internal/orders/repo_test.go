package orders

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mycoshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/pagination"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

func insertOrder(t *testing.T, repo Repository, number, session string, createdAt time.Time) *models.Order {
	t.Helper()
	order, err := repo.Create(context.Background(), &models.Order{
		OrderNumber:   number,
		SessionID:     session,
		Items:         types.LineItems{},
		Subtotal:      decimal.RequireFromString("10.00"),
		Tax:           decimal.RequireFromString("0.80"),
		Shipping:      decimal.RequireFromString("9.99"),
		Total:         decimal.RequireFromString("20.79"),
		PaymentMethod: enums.PaymentMethodCard,
		PaymentStatus: enums.PaymentStatusPending,
		Status:        enums.OrderStatusPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	})
	require.NoError(t, err)
	return order
}

func TestRepositoryUpdateIfHonoursGuard(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	order := insertOrder(t, repo, "MSH100", "s1", time.Now().UTC())

	ok, err := repo.UpdateIf(ctx, order.ID, Guard{
		PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusCompleted},
	}, map[string]any{"status": enums.OrderStatusShipped})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.UpdateIf(ctx, order.ID, Guard{
		Statuses:        []enums.OrderStatus{enums.OrderStatusPending},
		PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed},
	}, map[string]any{"payment_status": enums.PaymentStatusCompleted})
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.FindByNumber(ctx, "MSH100")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.PaymentStatus)
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("20.79")))
}

func TestRepositoryFindStalePending(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	insertOrder(t, repo, "MSH1", "s1", now.Add(-100*time.Hour))
	insertOrder(t, repo, "MSH2", "s1", now.Add(-80*time.Hour))
	insertOrder(t, repo, "MSH3", "s1", now.Add(-time.Hour))
	paid := insertOrder(t, repo, "MSH4", "s2", now.Add(-90*time.Hour))
	_, err := repo.UpdateIf(ctx, paid.ID, Guard{}, map[string]any{"payment_status": enums.PaymentStatusCompleted})
	require.NoError(t, err)

	rows, err := repo.FindStalePending(ctx, now.Add(-72*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "MSH1", rows[0].OrderNumber)
	assert.Equal(t, "MSH2", rows[1].OrderNumber)

	rows, err = repo.FindStalePending(ctx, now.Add(-72*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	list, total, err := repo.ListBySession(ctx, "s1", pagination.Params{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 1)
	assert.Equal(t, "MSH1", list[0].OrderNumber)
}
