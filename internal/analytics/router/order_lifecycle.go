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

// lifecycleHandler records events that do not open a sale: payment
// failures and refunds, cancellations and fulfillment updates.
type lifecycleHandler struct {
	writer Writer
	logg   *logger.Logger
}

func (h lifecycleHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	payloadJSON, err := analyticswriter.EncodeJSON(envelope.Payload)
	if err != nil {
		return fmt.Errorf("encode payload json: %w", err)
	}
	row := types.OrderEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt,
		ActorRole:  stringPtr(envelope.ActorRole),
		Payload:    payloadJSON,
	}

	switch event := payload.(type) {
	case *payloads.PaymentFailedEvent:
		row.OrderID = event.OrderID.String()
		row.OrderNumber = event.OrderNumber
		row.PaymentMethod = stringPtr(event.PaymentMethod.String())
		row.Status = stringPtr(enums.OrderStatusPending.String())
		row.Reason = stringPtr(event.Reason)
	case *payloads.PaymentRefundedEvent:
		row.OrderID = event.OrderID.String()
		row.OrderNumber = event.OrderNumber
		row.PaymentMethod = stringPtr(event.PaymentMethod.String())
		row.Status = stringPtr(event.Status.String())
		row.Reason = stringPtr(event.Reason)
	case *payloads.OrderCanceledEvent:
		row.OrderID = event.OrderID.String()
		row.OrderNumber = event.OrderNumber
		row.Status = stringPtr(enums.OrderStatusCancelled.String())
		row.Reason = stringPtr(event.Reason)
	case *payloads.OrderStateChangedEvent:
		row.OrderID = event.OrderID.String()
		row.OrderNumber = event.OrderNumber
		row.Status = stringPtr(event.Status.String())
		row.Reason = stringPtr(event.Note)
	default:
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}

	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"order_number": row.OrderNumber,
	})
	if err := h.writer.InsertOrderEvent(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}
	return nil
}
