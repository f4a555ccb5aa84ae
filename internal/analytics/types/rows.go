package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// OrderEventRow mirrors the order_events BigQuery schema: one row per
// lifecycle event.
type OrderEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	OrderID       string             `bigquery:"order_id"`
	OrderNumber   string             `bigquery:"order_number"`
	SessionID     *string            `bigquery:"session_id"`
	ActorRole     *string            `bigquery:"actor_role"`
	PaymentMethod *string            `bigquery:"payment_method"`
	Status        *string            `bigquery:"status"`
	ItemCount     *int64             `bigquery:"item_count"`
	SubtotalCents *int64             `bigquery:"subtotal_cents"`
	TaxCents      *int64             `bigquery:"tax_cents"`
	ShippingCents *int64             `bigquery:"shipping_cents"`
	TotalCents    *int64             `bigquery:"total_cents"`
	Reason        *string            `bigquery:"reason"`
	Items         cbigquery.NullJSON `bigquery:"items"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

// OrderSummaryRow mirrors the order_summaries schema: one row per paid
// order, the basis for revenue reporting.
type OrderSummaryRow struct {
	OrderID       string             `bigquery:"order_id"`
	OrderNumber   string             `bigquery:"order_number"`
	PaidAt        time.Time          `bigquery:"paid_at"`
	PaymentMethod string             `bigquery:"payment_method"`
	TransactionID *string            `bigquery:"transaction_id"`
	ItemCount     int64              `bigquery:"item_count"`
	SubtotalCents int64              `bigquery:"subtotal_cents"`
	TaxCents      int64              `bigquery:"tax_cents"`
	ShippingCents int64              `bigquery:"shipping_cents"`
	TotalCents    int64              `bigquery:"total_cents"`
	Items         cbigquery.NullJSON `bigquery:"items"`
}
