package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/mycoshop-backend/internal/analytics/writer"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/payloads"
)

type orderCreatedHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newOrderCreatedHandler(writer Writer, logg *logger.Logger) Handler {
	return &orderCreatedHandler{writer: writer, logg: logg}
}

func (h *orderCreatedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderCreatedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for order_created")
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"order_number": event.OrderNumber,
	})

	row, err := buildOrderCreatedRow(envelope, event)
	if err != nil {
		h.logg.Error(logCtx, "failed to build order event row", err)
		return err
	}
	if err := h.writer.InsertOrderEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}

	h.logg.Debug(logCtx, "order_created row inserted")
	return nil
}

func buildOrderCreatedRow(envelope types.Envelope, event *payloads.OrderCreatedEvent) (types.OrderEventRow, error) {
	itemsJSON, err := analyticswriter.EncodeJSON(event.Items)
	if err != nil {
		return types.OrderEventRow{}, fmt.Errorf("encode items json: %w", err)
	}
	payloadJSON, err := analyticswriter.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.OrderEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}
	return types.OrderEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		OccurredAt:    envelope.OccurredAt,
		OrderID:       event.OrderID.String(),
		OrderNumber:   event.OrderNumber,
		SessionID:     stringPtr(event.SessionID),
		ActorRole:     stringPtr(envelope.ActorRole),
		PaymentMethod: stringPtr(event.PaymentMethod.String()),
		Status:        stringPtr(enums.OrderStatusPending.String()),
		ItemCount:     int64Ptr(int64(event.ItemCount)),
		SubtotalCents: centsPtr(event.Subtotal),
		TaxCents:      centsPtr(event.Tax),
		ShippingCents: centsPtr(event.Shipping),
		TotalCents:    centsPtr(event.Total),
		Items:         itemsJSON,
		Payload:       payloadJSON,
	}, nil
}
