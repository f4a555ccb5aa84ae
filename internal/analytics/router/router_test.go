package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/payloads"
)

func TestRouterUnsupportedEvent(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	env := types.Envelope{
		EventType: enums.OutboxEventType("unsupported"),
		Payload:   []byte(`{"foo":"bar"}`),
	}
	err := router.Handle(context.Background(), env)
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRouterRoutesToOverride(t *testing.T) {
	handler := &stubHandler{}
	router, _ := newTestRouter(t, map[enums.OutboxEventType]Handler{
		enums.EventOrderCreated: handler,
	})
	env := types.Envelope{
		EventType: enums.EventOrderCreated,
		Payload:   mustJSON(t, payloads.OrderCreatedEvent{OrderNumber: "MSH1"}),
	}
	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handler.called {
		t.Fatalf("handler not invoked")
	}
}

func TestOrderCreatedRowCarriesTotalsInCents(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	orderID := uuid.New()
	event := payloads.OrderCreatedEvent{
		OrderID:       orderID,
		OrderNumber:   "MSH1700000000000001",
		SessionID:     "sess-1",
		ItemCount:     1,
		Items:         []payloads.EventItem{{ProductID: uuid.New(), Name: "Lion's Mane Kit", Quantity: 1, UnitPrice: decimal.RequireFromString("49.25"), LineTotal: decimal.RequireFromString("49.25")}},
		Subtotal:      decimal.RequireFromString("49.25"),
		Tax:           decimal.RequireFromString("3.94"),
		Shipping:      decimal.Zero,
		Total:         decimal.RequireFromString("53.19"),
		PaymentMethod: enums.PaymentMethodStripe,
	}
	env := types.Envelope{
		EventID:    "evt-1",
		EventType:  enums.EventOrderCreated,
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ActorRole:  "shopper",
		Payload:    mustJSON(t, event),
	}

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(writer.events) != 1 {
		t.Fatalf("expected 1 event row, got %d", len(writer.events))
	}
	row := writer.events[0]
	if row.OrderID != orderID.String() || row.OrderNumber != event.OrderNumber {
		t.Fatalf("unexpected identity %+v", row)
	}
	if row.TotalCents == nil || *row.TotalCents != 5319 {
		t.Fatalf("expected total 5319 cents, got %v", row.TotalCents)
	}
	if row.TaxCents == nil || *row.TaxCents != 394 {
		t.Fatalf("expected tax 394 cents, got %v", row.TaxCents)
	}
	if row.Status == nil || *row.Status != "pending" {
		t.Fatalf("expected pending status, got %v", row.Status)
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(row.Items.JSONVal), &items); err != nil {
		t.Fatalf("unmarshal items: %v", err)
	}
	if len(items) != 1 || items[0]["name"] != "Lion's Mane Kit" {
		t.Fatalf("unexpected items %v", items)
	}
	if len(writer.summaries) != 0 {
		t.Fatalf("order_created must not write summaries")
	}
}

func TestOrderPaidWritesEventAndSummary(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	event := payloads.OrderPaidEvent{
		OrderID:     uuid.New(),
		OrderNumber: "MSH1700000000000002",
		Items: []payloads.EventItem{
			{Name: "Oyster Kit", Quantity: 2},
			{Name: "Shiitake Kit", Quantity: 1},
		},
		Subtotal:      decimal.RequireFromString("60.00"),
		Tax:           decimal.RequireFromString("4.80"),
		Total:         decimal.RequireFromString("64.80"),
		PaymentMethod: enums.PaymentMethodPayPal,
		TransactionID: "PAYID-1",
	}
	occurred := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	env := types.Envelope{
		EventID:    "evt-2",
		EventType:  enums.EventOrderPaid,
		OccurredAt: occurred,
		Payload:    mustJSON(t, event),
	}

	if err := router.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(writer.events) != 1 || len(writer.summaries) != 1 {
		t.Fatalf("expected one event and one summary, got %d/%d", len(writer.events), len(writer.summaries))
	}
	summary := writer.summaries[0]
	if summary.TotalCents != 6480 || summary.ItemCount != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !summary.PaidAt.Equal(occurred) {
		t.Fatalf("expected paid at to fall back to occurred at, got %s", summary.PaidAt)
	}
	if summary.TransactionID == nil || *summary.TransactionID != "PAYID-1" {
		t.Fatalf("unexpected transaction id %v", summary.TransactionID)
	}
}

func TestLifecycleEventsRecordStatusAndReason(t *testing.T) {
	router, writer := newTestRouter(t, nil)
	cases := []struct {
		eventType enums.OutboxEventType
		payload   any
		status    string
		reason    string
	}{
		{enums.EventPaymentFailed, payloads.PaymentFailedEvent{OrderNumber: "A", PaymentMethod: enums.PaymentMethodCard, Reason: "CARD_DECLINED"}, "pending", "CARD_DECLINED"},
		{enums.EventPaymentRefunded, payloads.PaymentRefundedEvent{OrderNumber: "D", PaymentMethod: enums.PaymentMethodStripe, Status: enums.OrderStatusDelivered, Reason: "damaged in transit"}, "delivered", "damaged in transit"},
		{enums.EventOrderCanceled, payloads.OrderCanceledEvent{OrderNumber: "B", Reason: "Order expired without payment"}, "cancelled", "Order expired without payment"},
		{enums.EventOrderStateChanged, payloads.OrderStateChangedEvent{OrderNumber: "C", Status: enums.OrderStatusShipped, Note: "Status updated to shipped"}, "shipped", "Status updated to shipped"},
	}
	for _, tc := range cases {
		env := types.Envelope{EventID: string(tc.eventType), EventType: tc.eventType, Payload: mustJSON(t, tc.payload)}
		if err := router.Handle(context.Background(), env); err != nil {
			t.Fatalf("%s: %v", tc.eventType, err)
		}
		row := writer.events[len(writer.events)-1]
		if row.Status == nil || *row.Status != tc.status {
			t.Fatalf("%s: expected status %s, got %v", tc.eventType, tc.status, row.Status)
		}
		if row.Reason == nil || *row.Reason != tc.reason {
			t.Fatalf("%s: expected reason %q, got %v", tc.eventType, tc.reason, row.Reason)
		}
	}
}

func newTestRouter(t *testing.T, overrides map[enums.OutboxEventType]Handler) (*Router, *fakeWriter) {
	t.Helper()
	writer := &fakeWriter{}
	router, err := NewRouter(writer, logger.New(logger.Options{ServiceName: "router-test"}), overrides)
	if err != nil {
		t.Fatalf("construct router: %v", err)
	}
	return router, writer
}

func mustJSON(t *testing.T, value any) []byte {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

type stubHandler struct {
	called bool
}

func (s *stubHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	s.called = true
	return nil
}

type fakeWriter struct {
	events    []types.OrderEventRow
	summaries []types.OrderSummaryRow
}

func (f *fakeWriter) InsertOrderEvent(_ context.Context, row types.OrderEventRow) error {
	f.events = append(f.events, row)
	return nil
}

func (f *fakeWriter) InsertOrderSummary(_ context.Context, row types.OrderSummaryRow) error {
	f.summaries = append(f.summaries, row)
	return nil
}
