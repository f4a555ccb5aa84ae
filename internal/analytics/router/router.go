package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported order event type")

// Writer receives the BigQuery rows built from order events.
type Writer interface {
	InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error
	InsertOrderSummary(ctx context.Context, row types.OrderSummaryRow) error
}

// Handler turns one decoded order event into analytics rows. payload is
// the typed pointer from registry.DecodePayload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// Router picks the analytics handler for an envelope's event type.
type Router struct {
	handlers map[enums.OutboxEventType]Handler
}

// NewRouter registers the built-in handlers. overrides replaces the handler
// for an event type the router already knows; unknown types are ignored.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	switch {
	case writer == nil:
		return nil, errors.New("writer is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}

	lifecycle := lifecycleHandler{writer: writer, logg: logg}
	handlers := map[enums.OutboxEventType]Handler{
		enums.EventOrderCreated:      newOrderCreatedHandler(writer, logg),
		enums.EventOrderPaid:         newOrderPaidHandler(writer, logg),
		enums.EventPaymentFailed:     lifecycle,
		enums.EventPaymentRefunded:   lifecycle,
		enums.EventOrderCanceled:     lifecycle,
		enums.EventOrderStateChanged: lifecycle,
	}
	for eventType, h := range overrides {
		if _, known := handlers[eventType]; known && h != nil {
			handlers[eventType] = h
		}
	}
	return &Router{handlers: handlers}, nil
}

func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	h, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	payload, err := registry.DecodePayload(envelope.EventType, envelope.Payload)
	if errors.Is(err, registry.ErrUnknownEventType) {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if err != nil {
		return err
	}
	return h.Handle(ctx, envelope, payload)
}
