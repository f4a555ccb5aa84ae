package query

import (
	"context"
	"fmt"

	cloudbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

const (
	ordersCreatedSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  COUNT(DISTINCT order_id) AS value
FROM %s
WHERE event_type = 'order_created'
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	revenueSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(paid_at)) AS day,
  SUM(total_cents) AS value
FROM %s
WHERE paid_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	topProductsSQL = `
SELECT label, SUM(value) AS value FROM (
  SELECT
    JSON_VALUE(item, '$.name') AS label,
    SAFE_CAST(JSON_VALUE(item, '$.quantity') AS INT64) AS value
  FROM %s,
  UNNEST(JSON_QUERY_ARRAY(items)) AS item
  WHERE items IS NOT NULL
    AND paid_at BETWEEN @start AND @end
)
WHERE label IS NOT NULL
GROUP BY label
ORDER BY value DESC
LIMIT 5
`

	paymentMethodsSQL = `
SELECT payment_method AS label, COUNT(*) AS value
FROM %s
WHERE paid_at BETWEEN @start AND @end
GROUP BY payment_method
ORDER BY value DESC
`

	paidTotalsSQL = `
SELECT
  COUNT(*) AS paid_orders,
  SAFE_DIVIDE(SUM(total_cents), NULLIF(COUNT(*), 0)) AS average_order_cents
FROM %s
WHERE paid_at BETWEEN @start AND @end
`

	lifecycleCountsSQL = `
SELECT
  COUNTIF(event_type = 'order_canceled') AS cancelled_orders,
  COUNTIF(event_type = 'payment_failed') AS failed_payments
FROM %s
WHERE occurred_at BETWEEN @start AND @end
`
)

// Querier runs parameterized SQL; satisfied by pkg/bigquery.Client.
type Querier interface {
	Query(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (*cloudbigquery.RowIterator, error)
}

// SalesService builds the admin sales report from the order tables.
type SalesService interface {
	Query(ctx context.Context, req types.SalesQueryRequest) (*types.SalesReport, error)
}

type salesService struct {
	client     Querier
	eventsRef  string
	summaryRef string
}

// NewSalesService builds a service backed by BigQuery.
func NewSalesService(client Querier, project, dataset, eventsTable, summaryTable string) (SalesService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if project == "" || dataset == "" || eventsTable == "" || summaryTable == "" {
		return nil, fmt.Errorf("project, dataset, and tables are required")
	}
	return &salesService{
		client:     client,
		eventsRef:  fmt.Sprintf("`%s.%s.%s`", project, dataset, eventsTable),
		summaryRef: fmt.Sprintf("`%s.%s.%s`", project, dataset, summaryTable),
	}, nil
}

func (s *salesService) Query(ctx context.Context, req types.SalesQueryRequest) (*types.SalesReport, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	params := []cloudbigquery.QueryParameter{
		{Name: "start", Value: req.Start},
		{Name: "end", Value: req.End},
	}

	created, err := s.querySeries(ctx, fmt.Sprintf(ordersCreatedSQL, s.eventsRef), params)
	if err != nil {
		return nil, err
	}
	revenue, err := s.querySeries(ctx, fmt.Sprintf(revenueSQL, s.summaryRef), params)
	if err != nil {
		return nil, err
	}
	topProducts, err := s.queryLabels(ctx, fmt.Sprintf(topProductsSQL, s.summaryRef), params)
	if err != nil {
		return nil, err
	}
	methods, err := s.queryLabels(ctx, fmt.Sprintf(paymentMethodsSQL, s.summaryRef), params)
	if err != nil {
		return nil, err
	}

	report := &types.SalesReport{
		OrdersCreated:  created,
		RevenueCents:   revenue,
		TopProducts:    topProducts,
		PaymentMethods: methods,
	}
	if err := s.queryPaidTotals(ctx, fmt.Sprintf(paidTotalsSQL, s.summaryRef), params, report); err != nil {
		return nil, err
	}
	if err := s.queryLifecycle(ctx, fmt.Sprintf(lifecycleCountsSQL, s.eventsRef), params, report); err != nil {
		return nil, err
	}
	return report, nil
}

// ValidateRequest rejects empty or inverted report windows.
func ValidateRequest(req types.SalesQueryRequest) error {
	if req.Start.IsZero() || req.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	return nil
}

func (s *salesService) querySeries(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.TimeSeriesPoint, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}

	points := []types.TimeSeriesPoint{}
	for {
		var row struct {
			Day   string `bigquery:"day"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading series row: %w", err)
		}
		points = append(points, types.TimeSeriesPoint{Date: row.Day, Value: row.Value})
	}
	return points, nil
}

func (s *salesService) queryLabels(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.LabelValue, error) {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}

	result := []types.LabelValue{}
	for {
		var row struct {
			Label string `bigquery:"label"`
			Value int64  `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("reading label row: %w", err)
		}
		result = append(result, types.LabelValue{Label: row.Label, Value: row.Value})
	}
	return result, nil
}

func (s *salesService) queryPaidTotals(ctx context.Context, sql string, params []cloudbigquery.QueryParameter, report *types.SalesReport) error {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return fmt.Errorf("query paid totals: %w", err)
	}
	var row struct {
		PaidOrders        int64                     `bigquery:"paid_orders"`
		AverageOrderCents cloudbigquery.NullFloat64 `bigquery:"average_order_cents"`
	}
	if err := iter.Next(&row); err != nil {
		if err == iterator.Done {
			return nil
		}
		return fmt.Errorf("reading paid totals row: %w", err)
	}
	report.PaidOrders = row.PaidOrders
	if row.AverageOrderCents.Valid {
		report.AverageOrderCents = row.AverageOrderCents.Float64
	}
	return nil
}

func (s *salesService) queryLifecycle(ctx context.Context, sql string, params []cloudbigquery.QueryParameter, report *types.SalesReport) error {
	iter, err := s.client.Query(ctx, sql, params)
	if err != nil {
		return fmt.Errorf("query lifecycle counts: %w", err)
	}
	var row struct {
		CancelledOrders int64 `bigquery:"cancelled_orders"`
		FailedPayments  int64 `bigquery:"failed_payments"`
	}
	if err := iter.Next(&row); err != nil {
		if err == iterator.Done {
			return nil
		}
		return fmt.Errorf("reading lifecycle row: %w", err)
	}
	report.CancelledOrders = row.CancelledOrders
	report.FailedPaymentCount = row.FailedPayments
	return nil
}
