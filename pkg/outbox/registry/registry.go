package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/payloads"
)

// Route says where an event type is published.
type Route struct {
	Aggregate enums.OutboxAggregateType
	Topic     string
}

type decoder func(json.RawMessage) (any, error)

func typed[T any]() decoder {
	return func(raw json.RawMessage) (any, error) {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

var payloadDecoders = map[enums.OutboxEventType]decoder{
	enums.EventOrderCreated:      typed[payloads.OrderCreatedEvent](),
	enums.EventOrderPaid:         typed[payloads.OrderPaidEvent](),
	enums.EventPaymentFailed:     typed[payloads.PaymentFailedEvent](),
	enums.EventPaymentRefunded:   typed[payloads.PaymentRefundedEvent](),
	enums.EventOrderCanceled:     typed[payloads.OrderCanceledEvent](),
	enums.EventOrderStateChanged: typed[payloads.OrderStateChangedEvent](),
}

// ErrUnknownEventType is returned by DecodePayload for event types without
// a payload schema.
var ErrUnknownEventType = errors.New("unknown outbox event type")

// DecodePayload decodes an envelope's data into the typed payload struct
// for eventType, returned as a pointer (for example *payloads.OrderPaidEvent).
func DecodePayload(eventType enums.OutboxEventType, raw json.RawMessage) (any, error) {
	decode, ok := payloadDecoders[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	if data := bytes.TrimSpace(raw); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%s envelope has no data", eventType)
	}
	payload, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	return payload, nil
}

// ResolvedEvent is an outbox row that passed validation.
type ResolvedEvent struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// EventRegistry validates outbox rows before they are published. A row it
// rejects can never succeed, so every error it returns is non-retryable.
type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := cfg.OrdersTopic
	if topic == "" {
		return nil, errors.New("orders topic is required")
	}
	routes := make(map[enums.OutboxEventType]Route, len(payloadDecoders))
	for eventType := range payloadDecoders {
		routes[eventType] = Route{Aggregate: enums.AggregateOrder, Topic: topic}
	}
	return &EventRegistry{routes: routes}, nil
}

// Topics lists every topic the registry publishes to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var topics []string
	for _, route := range r.routes {
		if _, ok := seen[route.Topic]; ok {
			continue
		}
		seen[route.Topic] = struct{}{}
		topics = append(topics, route.Topic)
	}
	sort.Strings(topics)
	return topics
}

// Route returns the route registered for eventType.
func (r *EventRegistry) Route(eventType enums.OutboxEventType) (Route, bool) {
	route, ok := r.routes[eventType]
	return route, ok
}

func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, fmt.Errorf("unsupported event type %q", event.EventType)
	case route.Aggregate != event.AggregateType:
		return nil, fmt.Errorf("%s belongs to %s aggregates, row has %s", event.EventType, route.Aggregate, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errors.New("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	payload, err := DecodePayload(event.EventType, envelope.Data)
	if err != nil {
		return nil, err
	}
	return &ResolvedEvent{Topic: route.Topic, Envelope: envelope, Payload: payload}, nil
}
