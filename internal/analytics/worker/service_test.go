package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/router"
	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
)

type memoryLedger struct {
	claimed  map[string]bool
	claimErr error
	released []string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{claimed: map[string]bool{}}
}

func (m *memoryLedger) Claim(_ context.Context, consumer, id string) (bool, error) {
	if m.claimErr != nil {
		return false, m.claimErr
	}
	key := consumer + "/" + id
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *memoryLedger) Release(_ context.Context, consumer, id string) error {
	m.released = append(m.released, id)
	delete(m.claimed, consumer+"/"+id)
	return nil
}

type recordingHandler struct {
	seen []types.Envelope
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, env types.Envelope) error {
	h.seen = append(h.seen, env)
	return h.err
}

func orderMessage(t *testing.T, eventID string, stored outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	t.Helper()
	if stored.EventID == "" {
		stored.EventID = eventID
	}
	data, err := json.Marshal(stored)
	require.NoError(t, err)
	merged := map[string]string{
		"event_type":     "order_created",
		"aggregate_type": "order",
		"aggregate_id":   "ord-123",
	}
	for k, v := range attrs {
		merged[k] = v
	}
	return &gcppubsub.Message{ID: "msg-" + eventID, Data: data, Attributes: merged}
}

func testService(handler Handler, ledger processedLedger) *Service {
	return &Service{
		handler: handler,
		ledger:  ledger,
		logg:    logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
	}
}

func TestDecodeEnvelopePrefersBodyFields(t *testing.T) {
	occurred := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := orderMessage(t, "evt-1", outbox.PayloadEnvelope{
		Version:    1,
		OccurredAt: occurred,
		Actor:      &outbox.ActorRef{Role: outbox.ActorRoleShopper},
		Data:       json.RawMessage(`{"orderNumber":"MS-20250301-0001"}`),
	}, map[string]string{"event_id": "evt-attr", "version": "9"})

	env, err := decodeEnvelope(msg)
	require.NoError(t, err)

	assert.Equal(t, "evt-1", env.EventID)
	assert.Equal(t, enums.EventOrderCreated, env.EventType)
	assert.Equal(t, enums.AggregateOrder, env.AggregateType)
	assert.Equal(t, "ord-123", env.AggregateID)
	assert.Equal(t, 1, env.Version)
	assert.True(t, env.OccurredAt.Equal(occurred))
	assert.Equal(t, outbox.ActorRoleShopper, env.ActorRole)
	assert.JSONEq(t, `{"orderNumber":"MS-20250301-0001"}`, string(env.Payload))
}

func TestDecodeEnvelopeFillsGapsFromAttributes(t *testing.T) {
	created := time.Date(2025, 3, 2, 8, 30, 0, 0, time.UTC)
	msg := orderMessage(t, "", outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, map[string]string{
		"event_type": "order_paid",
		"event_id":   "evt-attr",
		"created_at": created.Format(time.RFC3339Nano),
		"version":    "2",
	})

	env, err := decodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, "evt-attr", env.EventID)
	assert.Equal(t, 2, env.Version)
	assert.True(t, env.OccurredAt.Equal(created))
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	cases := map[string]*gcppubsub.Message{
		"unknown event type": orderMessage(t, "evt", outbox.PayloadEnvelope{}, map[string]string{"event_type": "ad_clicked"}),
		"missing aggregate":  orderMessage(t, "evt", outbox.PayloadEnvelope{}, map[string]string{"aggregate_id": " "}),
		"missing event id":   orderMessage(t, "", outbox.PayloadEnvelope{}, nil),
		"not json":           {Data: []byte("nope")},
	}
	for name, msg := range cases {
		_, err := decodeEnvelope(msg)
		assert.Error(t, err, name)
	}
}

func TestConsumeHandlesEachEventOnce(t *testing.T) {
	ledger := newMemoryLedger()
	handler := &recordingHandler{}
	svc := testService(handler, ledger)
	msg := orderMessage(t, "evt-42", outbox.PayloadEnvelope{Version: 1}, nil)

	assert.Equal(t, settle, svc.consume(context.Background(), msg))
	assert.Equal(t, settle, svc.consume(context.Background(), msg))

	require.Len(t, handler.seen, 1)
	assert.Equal(t, "ord-123", handler.seen[0].AggregateID)
	assert.Empty(t, ledger.released)
}

func TestConsumeRedeliversWhenLedgerUnavailable(t *testing.T) {
	ledger := newMemoryLedger()
	ledger.claimErr = errors.New("redis down")
	handler := &recordingHandler{}

	got := testService(handler, ledger).consume(context.Background(), orderMessage(t, "evt-1", outbox.PayloadEnvelope{}, nil))

	assert.Equal(t, redeliver, got)
	assert.Empty(t, handler.seen)
}

func TestConsumeReleasesMarkerWhenHandlerFails(t *testing.T) {
	ledger := newMemoryLedger()
	handler := &recordingHandler{err: errors.New("bigquery unavailable")}
	svc := testService(handler, ledger)
	msg := orderMessage(t, "evt-7", outbox.PayloadEnvelope{}, nil)

	assert.Equal(t, redeliver, svc.consume(context.Background(), msg))
	assert.Equal(t, []string{"evt-7"}, ledger.released)

	handler.err = nil
	assert.Equal(t, settle, svc.consume(context.Background(), msg))
	assert.Len(t, handler.seen, 2, "redelivery runs the handler again")
}

func TestConsumeSettlesMalformedAndUnsupported(t *testing.T) {
	ledger := newMemoryLedger()
	handler := &recordingHandler{err: router.ErrUnsupportedEventType}
	svc := testService(handler, ledger)

	assert.Equal(t, settle, svc.consume(context.Background(), &gcppubsub.Message{Data: []byte("{")}))
	assert.Empty(t, ledger.claimed)

	assert.Equal(t, settle, svc.consume(context.Background(), orderMessage(t, "evt-9", outbox.PayloadEnvelope{}, nil)))
	assert.Empty(t, ledger.released)
}

func TestChainCombinesHandlerErrors(t *testing.T) {
	failing := &recordingHandler{err: errors.New("bigquery unavailable")}
	ok := &recordingHandler{}
	skipped := &recordingHandler{err: fmt.Errorf("%w: order_paid", router.ErrUnsupportedEventType)}

	err := Chain(failing, ok, skipped).Handle(context.Background(), types.Envelope{EventType: enums.EventOrderPaid})

	require.Error(t, err)
	assert.EqualError(t, err, "bigquery unavailable")
	assert.Len(t, failing.seen, 1)
	assert.Len(t, ok.seen, 1)
	assert.Len(t, skipped.seen, 1)
}

func TestChainReportsUnsupportedWhenNobodyAccepts(t *testing.T) {
	only := &recordingHandler{err: router.ErrUnsupportedEventType}

	err := Chain(only, nil).Handle(context.Background(), types.Envelope{EventType: enums.EventOrderCreated})
	assert.ErrorIs(t, err, router.ErrUnsupportedEventType)

	assert.NoError(t, Chain(&recordingHandler{}).Handle(context.Background(), types.Envelope{}))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, &recordingHandler{}, newMemoryLedger(), nil)
	assert.Error(t, err)
}
