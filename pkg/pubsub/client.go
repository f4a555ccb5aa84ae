package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

// Client is the shared Pub/Sub handle. The outbox publisher requires the
// orders topic, the analytics worker requires its subscription; each
// process declares what it needs and Ping checks exactly that.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	topics        []string
	subscriptions []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// Option declares a resource the process cannot run without.
type Option func(*Client)

// RequireTopic makes NewClient and Ping fail when topic does not exist.
func RequireTopic(topic string) Option {
	return func(c *Client) {
		if topic = strings.TrimSpace(topic); topic != "" {
			c.topics = append(c.topics, topic)
		}
	}
}

// RequireSubscription makes NewClient and Ping fail when sub does not exist.
func RequireSubscription(sub string) Option {
	return func(c *Client) {
		if sub = strings.TrimSpace(sub); sub != "" {
			c.subscriptions = append(c.subscriptions, sub)
		}
	}
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("SHOP_GCP_PROJECT_ID is required for pubsub")
	}

	raw, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client for %s: %w", projectID, err)
	}
	c := &Client{
		client:     raw,
		projectID:  projectID,
		cfg:        cfg,
		publishers: make(map[string]*pubsub.Publisher),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":        c.topics,
			"subscriptions": c.subscriptions,
		}), "pubsub ready")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// Ping confirms every required topic and subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, topic := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.resourceName("topics", topic)})
		if err := existence("topic", topic, err); err != nil {
			return err
		}
	}
	for _, sub := range c.subscriptions {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.resourceName("subscriptions", sub)})
		if err := existence("subscription", sub, err); err != nil {
			return err
		}
	}
	return nil
}

func existence(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("look up pubsub %s %q: %w", kind, name, err)
	}
}

// AnalyticsSubscription returns the subscriber feeding the analytics worker.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil || strings.TrimSpace(c.cfg.AnalyticsSubscription) == "" {
		return nil
	}
	return c.client.Subscriber(c.resourceName("subscriptions", c.cfg.AnalyticsSubscription))
}

// Publisher returns the publisher for topic, creating it on first use. The
// handle batches in the background and is reused for the client's lifetime.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil || strings.TrimSpace(topic) == "" {
		return nil
	}
	name := c.resourceName("topics", topic)

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.client.Publisher(name)
	c.publishers[name] = p
	return p
}

// Close flushes pending publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a short id to projects/<project>/<kind>/<id>. Full
// resource names pass through unchanged.
func (c *Client) resourceName(kind, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") {
		return name
	}
	return "projects/" + c.projectID + "/" + kind + "/" + name
}
