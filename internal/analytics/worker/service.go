package worker

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/multierr"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/router"
	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

const consumerName = "analytics"

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	return fn(ctx, envelope)
}

// Chain fans one envelope out to every handler. A handler that does not
// know the event type is skipped; the chain only reports the event as
// unsupported when nobody took it.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, envelope types.Envelope) error {
		var errs error
		accepted := 0
		for _, h := range handlers {
			if h == nil {
				continue
			}
			err := h.Handle(ctx, envelope)
			if errors.Is(err, router.ErrUnsupportedEventType) {
				continue
			}
			accepted++
			errs = multierr.Append(errs, err)
		}
		if accepted == 0 {
			return fmt.Errorf("%w: %s", router.ErrUnsupportedEventType, envelope.EventType)
		}
		return errs
	})
}

// processedLedger records which events this consumer already handled.
type processedLedger interface {
	Claim(ctx context.Context, consumer, id string) (bool, error)
	Release(ctx context.Context, consumer, id string) error
}

// Service consumes order events from the analytics subscription. Delivery
// is at-least-once; the ledger turns it into effectively-once per event ID.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	ledger       processedLedger
	logg         *logger.Logger
}

func NewService(subscription *gcppubsub.Subscriber, handler Handler, ledger processedLedger, logg *logger.Logger) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case ledger == nil:
		return nil, errors.New("processed-event ledger is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{subscription: subscription, handler: handler, ledger: ledger, logg: logg}, nil
}

// Run blocks receiving messages until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if s.consume(ctx, msg) == redeliver {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type settlement int

const (
	settle settlement = iota
	redeliver
)

// consume decides the fate of one message. Malformed and unsupported
// events are settled so they do not loop forever; infrastructure and
// handler failures are redelivered.
func (s *Service) consume(ctx context.Context, msg *gcppubsub.Message) settlement {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	env, err := decodeEnvelope(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping malformed order event")
		return settle
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   env.EventType,
		"aggregate_id": env.AggregateID,
	})

	claimed, err := s.ledger.Claim(ctx, consumerName, env.EventID)
	if err != nil {
		s.logg.Error(ctx, "claim processed-event marker", err)
		return redeliver
	}
	if !claimed {
		s.logg.Debug(ctx, "duplicate order event skipped")
		return settle
	}

	err = s.handler.Handle(ctx, env)
	switch {
	case err == nil:
		s.logg.Info(ctx, "order event handled")
		return settle
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Warn(ctx, "no analytics handler for event type")
		return settle
	}

	s.logg.Error(ctx, "order event handler failed", err)
	if err := s.ledger.Release(context.WithoutCancel(ctx), consumerName, env.EventID); err != nil {
		s.logg.Error(ctx, "release processed-event marker", err)
	}
	return redeliver
}
