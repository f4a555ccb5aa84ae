package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/query"
	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

const (
	defaultReportWindow = 30 * 24 * time.Hour
	maxReportWindow     = 366 * 24 * time.Hour
)

// Service provides sales reports built from order events.
type Service interface {
	// Query returns the sales report for the requested window. An empty
	// window covers the last 30 days.
	Query(ctx context.Context, req types.SalesQueryRequest) (*types.SalesReport, error)
}

type service struct {
	sales query.SalesService
	now   func() time.Time
}

// NewService builds an analytics service backed by BigQuery.
func NewService(client query.Querier, project, dataset, eventsTable, summaryTable string) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}

	sales, err := query.NewSalesService(client, project, dataset, eventsTable, summaryTable)
	if err != nil {
		return nil, err
	}

	return &service{sales: sales, now: time.Now}, nil
}

func (s *service) Query(ctx context.Context, req types.SalesQueryRequest) (*types.SalesReport, error) {
	if req.Start.IsZero() && req.End.IsZero() {
		req.End = s.now().UTC()
		req.Start = req.End.Add(-defaultReportWindow)
	}
	if err := query.ValidateRequest(req); err != nil {
		return nil, err
	}
	if req.End.Sub(req.Start) > maxReportWindow {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report window cannot exceed 366 days")
	}
	return s.sales.Query(ctx, req)
}
