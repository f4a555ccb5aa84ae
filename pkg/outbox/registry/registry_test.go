package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/payloads"
)

const ordersTopic = "shop-order-events"

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: ordersTopic})
	require.NoError(t, err)
	return reg
}

func outboxRow(t *testing.T, eventType enums.OutboxEventType, data string) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(data),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderPaidEvent{
		OrderID:       orderID,
		OrderNumber:   "MS-20250301-0001",
		Total:         decimal.RequireFromString("62.99"),
		PaymentMethod: enums.PaymentMethodStripe,
		TransactionID: "pi_123",
	})
	require.NoError(t, err)
	row := outboxRow(t, enums.EventOrderPaid, string(data))

	resolved, err := testRegistry(t).Resolve(row)
	require.NoError(t, err)

	assert.Equal(t, ordersTopic, resolved.Topic)
	assert.Equal(t, 1, resolved.Envelope.Version)
	assert.NotEmpty(t, resolved.Envelope.EventID)

	paid, ok := resolved.Payload.(*payloads.OrderPaidEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, orderID, paid.OrderID)
	assert.Equal(t, "pi_123", paid.TransactionID)
	assert.True(t, paid.Total.Equal(decimal.RequireFromString("62.99")))
}

func TestResolveRejectsUnpublishableRows(t *testing.T) {
	reg := testRegistry(t)

	unknown := outboxRow(t, "cart_abandoned", `{}`)
	wrongAggregate := outboxRow(t, enums.EventOrderCreated, `{}`)
	wrongAggregate.AggregateType = "cart"
	noAggregateID := outboxRow(t, enums.EventOrderCreated, `{}`)
	noAggregateID.AggregateID = uuid.Nil
	nullData := outboxRow(t, enums.EventOrderCanceled, `null`)
	badEnvelope := outboxRow(t, enums.EventOrderCreated, `{}`)
	badEnvelope.Payload = json.RawMessage(`[`)
	badPayload := outboxRow(t, enums.EventOrderPaid, `{"total":"not-a-number"}`)

	for name, row := range map[string]models.OutboxEvent{
		"unknown event type": unknown,
		"aggregate mismatch": wrongAggregate,
		"missing aggregate":  noAggregateID,
		"null data":          nullData,
		"bad envelope":       badEnvelope,
		"bad payload":        badPayload,
	} {
		_, err := reg.Resolve(row)
		require.Error(t, err, name)
		assert.True(t, IsNonRetryable(err), name)
	}
}

func TestEveryOrderEventIsRouted(t *testing.T) {
	reg := testRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventOrderCreated,
		enums.EventOrderPaid,
		enums.EventPaymentFailed,
		enums.EventPaymentRefunded,
		enums.EventOrderCanceled,
		enums.EventOrderStateChanged,
	} {
		route, ok := reg.Route(eventType)
		require.True(t, ok, eventType)
		assert.Equal(t, ordersTopic, route.Topic)
		assert.Equal(t, enums.AggregateOrder, route.Aggregate)
	}
	assert.Equal(t, []string{ordersTopic}, reg.Topics())
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)
}

func TestIsNonRetryable(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), NewNonRetryableError(errors.New("topic missing")))
	assert.True(t, IsNonRetryable(wrapped))
	assert.False(t, IsNonRetryable(errors.New("deadline exceeded")))
	assert.Equal(t, "non-retryable outbox error", NonRetryableError{}.Error())
}

func TestDecodePayload(t *testing.T) {
	payload, err := DecodePayload(enums.EventOrderCanceled, json.RawMessage(`{"order_number":"MS-20250301-0002"}`))
	require.NoError(t, err)
	assert.IsType(t, &payloads.OrderCanceledEvent{}, payload)

	_, err = DecodePayload("cart_abandoned", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)

	_, err = DecodePayload(enums.EventOrderPaid, nil)
	assert.Error(t, err)
}
