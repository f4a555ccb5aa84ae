package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	SessionID string `json:"sessionId,omitempty"`
	Role      string `json:"role,omitempty"`
}

const (
	ActorRoleShopper = "shopper"
	ActorRoleAdmin   = "admin"
	ActorRoleGateway = "gateway"
	ActorRoleSystem  = "system"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
