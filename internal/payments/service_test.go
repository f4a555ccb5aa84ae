package payments

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mycoshop-backend/internal/orders"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

type fakeOrders struct {
	order    *models.Order
	outcomes []orders.PaymentOutcomeInput
}

func (f *fakeOrders) Find(ctx context.Context, orderNumber string) (*models.Order, error) {
	if f.order == nil || f.order.OrderNumber != orderNumber {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return f.order, nil
}

func (f *fakeOrders) RecordPaymentOutcome(ctx context.Context, input orders.PaymentOutcomeInput) (*orders.OrderDTO, error) {
	f.outcomes = append(f.outcomes, input)
	if input.Outcome == orders.PaymentOutcomeSuccess {
		f.order.PaymentStatus = enums.PaymentStatusCompleted
		f.order.Status = enums.OrderStatusProcessing
	} else {
		f.order.PaymentStatus = enums.PaymentStatusFailed
	}
	return orders.NewOrderDTO(f.order), nil
}

func pendingOrder() *models.Order {
	return &models.Order{
		OrderNumber:     "MSH1700000000000123",
		SessionID:       "sess-1",
		Total:           decimal.RequireFromString("53.19"),
		Subtotal:        decimal.RequireFromString("49.25"),
		Tax:             decimal.RequireFromString("3.94"),
		Shipping:        decimal.Zero,
		PaymentMethod:   enums.PaymentMethodStripe,
		PaymentStatus:   enums.PaymentStatusPending,
		Status:          enums.OrderStatusPending,
		ShippingAddress: types.ShippingAddress{Email: "ada@example.com"},
	}
}

func TestServiceCreateBuildsProviderRequest(t *testing.T) {
	store := &fakeOrders{order: pendingOrder()}
	gateway := &fakeGateway{create: &CreateResult{PaymentID: "pi_1", ClientSecret: "secret", State: StatePending}}
	svc, err := NewService(store, nil, gateway)
	require.NoError(t, err)

	out, err := svc.Create(context.Background(), CreatePaymentInput{
		Provider:    enums.PaymentMethodStripe,
		SessionID:   "sess-1",
		OrderNumber: store.order.OrderNumber,
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", out.PaymentID)
	assert.True(t, gateway.lastReq.Amount.Equal(decimal.RequireFromString("53.19")))
	assert.Equal(t, "order-MSH1700000000000123-stripe", gateway.lastReq.IdempotencyKey)
	assert.Equal(t, "ada@example.com", gateway.lastReq.Email)
}

func TestServiceCreateRejectsForeignAndSettledOrders(t *testing.T) {
	store := &fakeOrders{order: pendingOrder()}
	svc, err := NewService(store, nil, &fakeGateway{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Create(ctx, CreatePaymentInput{Provider: enums.PaymentMethodStripe, SessionID: "other", OrderNumber: store.order.OrderNumber})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Create(ctx, CreatePaymentInput{Provider: enums.PaymentMethodPayPal, SessionID: "sess-1", OrderNumber: store.order.OrderNumber})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	store.order.PaymentStatus = enums.PaymentStatusCompleted
	_, err = svc.Create(ctx, CreatePaymentInput{Provider: enums.PaymentMethodStripe, SessionID: "sess-1", OrderNumber: store.order.OrderNumber})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))

	store.order.PaymentStatus = enums.PaymentStatusCancelled
	store.order.Status = enums.OrderStatusCancelled
	_, err = svc.Create(ctx, CreatePaymentInput{Provider: enums.PaymentMethodStripe, SessionID: "sess-1", OrderNumber: store.order.OrderNumber})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestServiceExecuteRecordsSuccess(t *testing.T) {
	store := &fakeOrders{order: pendingOrder()}
	gateway := &fakeGateway{result: &PaymentResult{
		PaymentID:     "pi_1",
		TransactionID: "ch_1",
		State:         StateSucceeded,
		Amount:        decimal.RequireFromString("53.19"),
		Currency:      "USD",
	}}
	svc, err := NewService(store, nil, gateway)
	require.NoError(t, err)

	out, err := svc.Execute(context.Background(), ExecutePaymentInput{
		Provider:    enums.PaymentMethodStripe,
		SessionID:   "sess-1",
		OrderNumber: store.order.OrderNumber,
		PaymentID:   "pi_1",
	})
	require.NoError(t, err)
	require.Len(t, store.outcomes, 1)
	recorded := store.outcomes[0]
	assert.Equal(t, orders.PaymentOutcomeSuccess, recorded.Outcome)
	assert.Equal(t, "ch_1", recorded.TransactionID)
	assert.Equal(t, "stripe", recorded.Details.Provider)
	assert.Equal(t, "pi_1", recorded.Details.ProviderRef)
	assert.Equal(t, enums.PaymentStatusCompleted, out.Order.PaymentStatus)
}

func TestServiceExecuteTreatsAmountMismatchAsFailure(t *testing.T) {
	store := &fakeOrders{order: pendingOrder()}
	gateway := &fakeGateway{result: &PaymentResult{
		PaymentID: "pi_1",
		State:     StateSucceeded,
		Amount:    decimal.RequireFromString("5.00"),
	}}
	svc, err := NewService(store, nil, gateway)
	require.NoError(t, err)

	_, err = svc.Execute(context.Background(), ExecutePaymentInput{
		Provider:    enums.PaymentMethodStripe,
		SessionID:   "sess-1",
		OrderNumber: store.order.OrderNumber,
		PaymentID:   "pi_1",
	})
	require.NoError(t, err)
	require.Len(t, store.outcomes, 1)
	assert.Equal(t, orders.PaymentOutcomeFailure, store.outcomes[0].Outcome)
	assert.Contains(t, store.outcomes[0].Reason, "amount mismatch")
}

func TestServiceExecutePendingLeavesOrder(t *testing.T) {
	store := &fakeOrders{order: pendingOrder()}
	gateway := &fakeGateway{result: &PaymentResult{PaymentID: "pi_1", State: StatePending}}
	svc, err := NewService(store, nil, gateway)
	require.NoError(t, err)

	out, err := svc.Execute(context.Background(), ExecutePaymentInput{
		Provider:    enums.PaymentMethodStripe,
		SessionID:   "sess-1",
		OrderNumber: store.order.OrderNumber,
		PaymentID:   "pi_1",
	})
	require.NoError(t, err)
	assert.Empty(t, store.outcomes)
	assert.Equal(t, enums.PaymentStatusPending, out.Order.PaymentStatus)
}

func TestServiceProcessCardRecordsDecline(t *testing.T) {
	store := &fakeOrders{order: pendingOrder()}
	gateway := &fakeGateway{
		name: enums.PaymentMethodCard,
		create: &CreateResult{PaymentID: "sq_1", State: StateFailed, Payment: &PaymentResult{
			PaymentID:     "sq_1",
			State:         StateFailed,
			FailureReason: "CARD_DECLINED",
		}},
	}
	svc, err := NewService(store, nil, gateway)
	require.NoError(t, err)

	_, err = svc.ProcessCard(context.Background(), CardPaymentInput{
		SessionID:   "sess-1",
		OrderNumber: store.order.OrderNumber,
		SourceID:    "cnon:card-nonce-declined",
	})
	require.NoError(t, err)
	require.Len(t, store.outcomes, 1)
	assert.Equal(t, orders.PaymentOutcomeFailure, store.outcomes[0].Outcome)
	assert.Equal(t, "CARD_DECLINED", store.outcomes[0].Reason)
	assert.Equal(t, "cnon:card-nonce-declined", gateway.lastReq.SourceID)
	assert.LessOrEqual(t, len(gateway.lastReq.IdempotencyKey), 45)
}

func TestServiceStatusRequiresPaymentID(t *testing.T) {
	svc, err := NewService(&fakeOrders{}, nil, &fakeGateway{result: &PaymentResult{PaymentID: "pi_1", State: StatePending}})
	require.NoError(t, err)

	_, err = svc.Status(context.Background(), enums.PaymentMethodStripe, " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	out, err := svc.Status(context.Background(), enums.PaymentMethodStripe, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, StatePending, out.State)
}
