package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
)

// decodeEnvelope merges the stored outbox envelope in msg.Data with the
// routing attributes the relay attaches. Body fields win; attributes only
// fill gaps left by older producers.
func decodeEnvelope(msg *gcppubsub.Message) (types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return types.Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}
	attrs := attributes(msg.Attributes)

	eventType, err := enums.ParseOutboxEventType(attrs.get("event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attrs.get("aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}

	env := types.Envelope{
		EventID:       firstNonEmpty(stored.EventID, attrs.get("event_id")),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   attrs.get("aggregate_id"),
		Version:       stored.Version,
		OccurredAt:    stored.OccurredAt,
		Payload:       stored.Data,
	}
	switch {
	case env.EventID == "":
		return types.Envelope{}, errors.New("event_id missing")
	case env.AggregateID == "":
		return types.Envelope{}, errors.New("aggregate_id missing")
	}

	if env.Version == 0 {
		env.Version, _ = strconv.Atoi(attrs.get("version"))
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt, _ = time.Parse(time.RFC3339Nano, attrs.get("created_at"))
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if stored.Actor != nil {
		env.ActorRole = stored.Actor.Role
	}
	return env, nil
}

type attributes map[string]string

func (a attributes) get(key string) string {
	return strings.TrimSpace(a[key])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
