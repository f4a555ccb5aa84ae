package enums

import "fmt"

// OutboxDLQErrorReason says why an order event was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: Pub/Sub kept failing until the retry
	// budget ran out.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonInvalidEvent: the row itself cannot be published, for
	// example an unknown event type or a payload that does not decode.
	OutboxDLQReasonInvalidEvent OutboxDLQErrorReason = "invalid_event"
	// OutboxDLQReasonRejected: Pub/Sub refused the message permanently.
	OutboxDLQReasonRejected OutboxDLQErrorReason = "publish_rejected"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonInvalidEvent,
	OutboxDLQReasonRejected,
}

func (r OutboxDLQErrorReason) String() string {
	return string(r)
}

func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validOutboxDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseOutboxDLQErrorReason converts a stored error_reason value.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	for _, candidate := range validOutboxDLQErrorReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox dlq error reason %q", value)
}
