package analytics

import (
	"context"
	"net/http"

	"github.com/angelmondragon/mycoshop-backend/api/responses"
	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

type salesQuerier interface {
	Query(ctx context.Context, req types.SalesQueryRequest) (*types.SalesReport, error)
}

// Sales returns the operator sales report for the requested window.
func Sales(svc salesQuerier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStoreUnavailable, "analytics unavailable"))
			return
		}

		start, end, err := resolveSalesRange(r, timeNowUTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Query(r.Context(), types.SalesQueryRequest{Start: start, End: end})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
