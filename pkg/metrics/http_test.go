package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("GET", "/api/products", 200, 20*time.Millisecond)
	m.Observe("GET", "/api/products", 200, 10*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "http_requests_total", "route", "/api/products"); err != nil {
		t.Fatalf("fetch requests: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 requests, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "http_request_duration_seconds", "method", "GET"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestPaymentAndOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPaymentMetrics(reg)
	om := NewOutboxMetrics(reg)
	pm.IncCall("stripe", "create", "success")
	pm.SetBreakerState("stripe", 2)
	om.IncPublished("order_paid")
	om.IncDLQ("order_paid", "max_attempts")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "payment_gateway_calls_total", "gateway", "stripe"); err != nil || got != 1 {
		t.Fatalf("unexpected gateway calls %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_published_total", "event_type", "order_paid"); err != nil || got != 1 {
		t.Fatalf("unexpected published count %f (%v)", got, err)
	}
	if findMetricFamily(mfs, "payment_gateway_breaker_state") == nil {
		t.Fatal("breaker gauge not exported")
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewHTTPMetrics(nil).Observe("GET", "/", 200, time.Millisecond)
	NewPaymentMetrics(nil).IncCall("paypal", "execute", "error")
	NewOutboxMetrics(nil).IncFailed("order_created")
	var m *HTTPMetrics
	m.Observe("GET", "/", 200, time.Millisecond)
}
