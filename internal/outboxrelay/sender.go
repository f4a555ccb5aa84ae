package outboxrelay

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/registry"
)

type publisherSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// PubSubSender publishes through the shared pkg/pubsub client.
type PubSubSender struct {
	client publisherSource
}

func NewPubSubSender(client publisherSource) *PubSubSender {
	return &PubSubSender{client: client}
}

func (s *PubSubSender) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Send blocks until Pub/Sub acknowledges the message. An unknown topic is a
// configuration problem and is not retried.
func (s *PubSubSender) Send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	publisher := s.client.Publisher(topic)
	if publisher == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	if _, err := publisher.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
