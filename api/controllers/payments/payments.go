package payments

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/mycoshop-backend/api/middleware"
	"github.com/angelmondragon/mycoshop-backend/api/responses"
	"github.com/angelmondragon/mycoshop-backend/api/validators"
	paymentsvc "github.com/angelmondragon/mycoshop-backend/internal/payments"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

// Create starts a provider payment for the order total.
func Create(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		provider, err := providerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paymentsvc.CreatePaymentInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Provider = provider
		payload.SessionID = middleware.SessionIDFromContext(r.Context())

		result, err := svc.Create(logCtx(r, logg, payload.OrderNumber), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Execute completes an approved payment and records the outcome on the order.
func Execute(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		provider, err := providerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paymentsvc.ExecutePaymentInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.Provider = provider
		payload.SessionID = middleware.SessionIDFromContext(r.Context())

		result, err := svc.Execute(logCtx(r, logg, payload.OrderNumber), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Status(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		provider, err := providerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Status(r.Context(), provider, chi.URLParam(r, "paymentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ProcessCard charges a tokenized card in one step.
func ProcessCard(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		var payload paymentsvc.CardPaymentInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.SessionID = middleware.SessionIDFromContext(r.Context())

		result, err := svc.ProcessCard(logCtx(r, logg, payload.OrderNumber), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func providerFromRequest(r *http.Request) (enums.PaymentMethod, error) {
	raw := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, err := enums.ParsePaymentMethod(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment provider").
			WithDetails(map[string]any{"provider": raw})
	}
	return provider, nil
}

func logCtx(r *http.Request, logg *logger.Logger, orderNumber string) context.Context {
	if logg == nil {
		return r.Context()
	}
	return logg.WithOrderNumber(r.Context(), orderNumber)
}
