package outboxrelay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/metrics"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	defaultMaxBackoff     = 10 * time.Second
	backoffJitter         = 250 * time.Millisecond
)

// Settings controls batching and retry behaviour of the relay.
type Settings struct {
	BatchSize      int
	PollInterval   time.Duration
	MaxAttempts    int
	PublishTimeout time.Duration
	MaxBackoff     time.Duration
}

// SettingsFromConfig maps the SHOP_OUTBOX_* variables, filling defaults for
// unset values.
func SettingsFromConfig(cfg config.OutboxConfig) Settings {
	return Settings{
		BatchSize:    cfg.BatchSize,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		MaxAttempts:  cfg.MaxAttempts,
	}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.BatchSize <= 0 {
		s.BatchSize = defaultBatchSize
	}
	if s.PollInterval <= 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = defaultMaxAttempts
	}
	if s.PublishTimeout <= 0 {
		s.PublishTimeout = defaultPublishTimeout
	}
	if s.MaxBackoff < s.PollInterval {
		s.MaxBackoff = defaultMaxBackoff
	}
	return s
}

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// Store is the outbox table surface the relay drives.
type Store interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, terminalAttempts int) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Sender delivers one message to a topic and waits for the broker ack.
type Sender interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) error
}

type Params struct {
	DB       txRunner
	Store    Store
	Registry resolver
	Sender   Sender
	Logger   *logger.Logger
	Metrics  *metrics.OutboxMetrics
	Settings Settings
}

// Relay moves committed outbox rows to Pub/Sub. Rows are locked with
// SKIP LOCKED so several relays can run side by side.
type Relay struct {
	db       txRunner
	store    Store
	registry resolver
	sender   Sender
	logg     *logger.Logger
	metrics  *metrics.OutboxMetrics
	settings Settings
}

func New(p Params) (*Relay, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Sender == nil:
		return nil, errors.New("sender is required")
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Relay{
		db:       p.DB,
		store:    p.Store,
		registry: p.Registry,
		sender:   p.Sender,
		logg:     p.Logger,
		metrics:  p.Metrics,
		settings: p.Settings.withDefaults(),
	}, nil
}

// Run drains the outbox until ctx is cancelled. Full batches are followed
// immediately by the next one; batch errors back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.sender.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	backoff := r.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		handled, err := r.Drain(ctx)
		wait := r.settings.PollInterval
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			wait, _ = backoff.Next()
		case handled > 0:
			backoff = r.newBackoff()
			continue
		default:
			backoff = r.newBackoff()
		}

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *Relay) newBackoff() retry.Backoff {
	b := retry.NewExponential(r.settings.PollInterval)
	b = retry.WithJitter(backoffJitter, b)
	return retry.WithCappedDuration(r.settings.MaxBackoff, b)
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

type delivery struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	topic   string
	err     error
}

// Drain handles one locked batch and reports how many rows it touched.
// Publish failures are recorded per row and never abort the batch.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.FetchUnpublishedForPublish(tx, r.settings.BatchSize, r.settings.MaxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, event := range events {
			if err := r.record(ctx, tx, event, r.deliver(ctx, event)); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	return handled, err
}

func (r *Relay) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return delivery{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonInvalidEvent, err: err}
	}
	topic := resolved.Topic

	sendCtx, cancel := context.WithTimeout(ctx, r.settings.PublishTimeout)
	defer cancel()
	err = r.sender.Send(sendCtx, topic, message(event, resolved))

	switch {
	case err == nil:
		return delivery{verdict: verdictPublished, topic: topic}
	case registry.IsNonRetryable(err):
		return delivery{verdict: verdictDeadLetter, reason: enums.OutboxDLQReasonRejected, topic: topic, err: err}
	case event.AttemptCount+1 >= r.settings.MaxAttempts:
		return delivery{
			verdict: verdictDeadLetter,
			reason:  enums.OutboxDLQReasonMaxAttempts,
			topic:   topic,
			err:     fmt.Errorf("max publish attempts reached: %w", err),
		}
	default:
		return delivery{verdict: verdictRetry, topic: topic, err: err}
	}
}

func (r *Relay) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, d delivery) error {
	eventType := string(event.EventType)
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    eventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
		"topic":         d.topic,
	})

	switch d.verdict {
	case verdictPublished:
		if err := r.store.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.IncPublished(eventType)
		r.logg.Debug(logCtx, "outbox event published")
	case verdictRetry:
		if err := r.store.MarkFailedTx(tx, event.ID, d.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		r.metrics.IncFailed(eventType)
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed, will retry")
	case verdictDeadLetter:
		if err := r.store.DeadLetterTx(tx, event, d.reason, d.err, r.settings.MaxAttempts); err != nil {
			return err
		}
		r.metrics.IncDLQ(eventType, string(d.reason))
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"error":        d.err.Error(),
			"error_reason": d.reason,
		}), "outbox event dead lettered")
	}
	return nil
}

// message publishes the stored envelope unchanged; consumers route and
// dedupe on the attributes.
func message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	eventID := resolved.Envelope.EventID
	if eventID == "" {
		eventID = event.ID.String()
	}
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       eventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
			"version":        strconv.Itoa(resolved.Envelope.Version),
		},
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
