package analytics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

type stubSalesService struct {
	last   types.SalesQueryRequest
	report *types.SalesReport
	err    error
}

func (s *stubSalesService) Query(ctx context.Context, req types.SalesQueryRequest) (*types.SalesReport, error) {
	s.last = req
	return s.report, s.err
}

func TestSalesExplicitRange(t *testing.T) {
	svc := &stubSalesService{report: &types.SalesReport{PaidOrders: 4}}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/sales?start=2024-01-01&end=2024-01-31T23:59:59Z", nil)
	resp := httptest.NewRecorder()

	Sales(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	wantStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	if !svc.last.Start.Equal(wantStart) || !svc.last.End.Equal(wantEnd) {
		t.Fatalf("unexpected window %s - %s", svc.last.Start, svc.last.End)
	}
}

func TestSalesPreset(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	original := timeNowUTC
	timeNowUTC = func() time.Time { return now }
	t.Cleanup(func() { timeNowUTC = original })

	svc := &stubSalesService{report: &types.SalesReport{}}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/sales?preset=7d", nil)
	resp := httptest.NewRecorder()

	Sales(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !svc.last.End.Equal(now) || !svc.last.Start.Equal(now.Add(-7*24*time.Hour)) {
		t.Fatalf("unexpected window %s - %s", svc.last.Start, svc.last.End)
	}
}

func TestSalesDefaultsToServiceWindow(t *testing.T) {
	svc := &stubSalesService{report: &types.SalesReport{}}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/sales", nil)
	resp := httptest.NewRecorder()

	Sales(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !svc.last.Start.IsZero() || !svc.last.End.IsZero() {
		t.Fatalf("expected zero window, got %+v", svc.last)
	}
}

func TestSalesRejectsBadInput(t *testing.T) {
	tests := []string{
		"/api/admin/analytics/sales?start=2024-01-01",
		"/api/admin/analytics/sales?start=yesterday&end=2024-01-02",
		"/api/admin/analytics/sales?preset=1y",
	}
	for _, url := range tests {
		svc := &stubSalesService{}
		resp := httptest.NewRecorder()
		Sales(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, url, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", url, resp.Code)
		}
	}
}

func TestSalesServiceError(t *testing.T) {
	svc := &stubSalesService{err: pkgerrors.New(pkgerrors.CodeValidation, "end must not be before start")}
	req := httptest.NewRequest(http.MethodGet, "/api/admin/analytics/sales?start=2024-02-01&end=2024-01-01", nil)
	resp := httptest.NewRecorder()

	Sales(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestSalesUnavailableWithoutService(t *testing.T) {
	resp := httptest.NewRecorder()
	Sales(nil, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/admin/analytics/sales", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
