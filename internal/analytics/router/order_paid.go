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

type orderPaidHandler struct {
	writer Writer
	logg   *logger.Logger
}

func newOrderPaidHandler(writer Writer, logg *logger.Logger) Handler {
	return &orderPaidHandler{writer: writer, logg: logg}
}

// Handle records the payment event and the paid-order summary row.
func (h *orderPaidHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderPaidEvent)
	if !ok {
		return fmt.Errorf("invalid payload for order_paid")
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"order_number": event.OrderNumber,
		"total_cents":  cents(event.Total),
	})

	itemsJSON, err := analyticswriter.EncodeJSON(event.Items)
	if err != nil {
		return fmt.Errorf("encode items json: %w", err)
	}
	payloadJSON, err := analyticswriter.EncodeJSON(envelope.Payload)
	if err != nil {
		return fmt.Errorf("encode payload json: %w", err)
	}

	itemCount := int64(0)
	for _, item := range event.Items {
		itemCount += int64(item.Quantity)
	}
	paidAt := event.PaidAt
	if paidAt.IsZero() {
		paidAt = envelope.OccurredAt
	}

	eventRow := types.OrderEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		OccurredAt:    envelope.OccurredAt,
		OrderID:       event.OrderID.String(),
		OrderNumber:   event.OrderNumber,
		SessionID:     stringPtr(event.SessionID),
		ActorRole:     stringPtr(envelope.ActorRole),
		PaymentMethod: stringPtr(event.PaymentMethod.String()),
		Status:        stringPtr(enums.OrderStatusProcessing.String()),
		ItemCount:     int64Ptr(itemCount),
		SubtotalCents: centsPtr(event.Subtotal),
		TaxCents:      centsPtr(event.Tax),
		ShippingCents: centsPtr(event.Shipping),
		TotalCents:    centsPtr(event.Total),
		Items:         itemsJSON,
		Payload:       payloadJSON,
	}
	if err := h.writer.InsertOrderEvent(logCtx, eventRow); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}

	summary := types.OrderSummaryRow{
		OrderID:       event.OrderID.String(),
		OrderNumber:   event.OrderNumber,
		PaidAt:        paidAt.UTC(),
		PaymentMethod: event.PaymentMethod.String(),
		TransactionID: stringPtr(event.TransactionID),
		ItemCount:     itemCount,
		SubtotalCents: cents(event.Subtotal),
		TaxCents:      cents(event.Tax),
		ShippingCents: cents(event.Shipping),
		TotalCents:    cents(event.Total),
		Items:         itemsJSON,
	}
	if err := h.writer.InsertOrderSummary(logCtx, summary); err != nil {
		h.logg.Error(logCtx, "failed to insert order summary row", err)
		return err
	}

	h.logg.Debug(logCtx, "order_paid rows inserted")
	return nil
}
