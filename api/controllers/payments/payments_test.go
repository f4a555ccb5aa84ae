package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/mycoshop-backend/api/middleware"
	paymentsvc "github.com/angelmondragon/mycoshop-backend/internal/payments"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

type stubPaymentService struct {
	created     *paymentsvc.CreateResult
	executed    *paymentsvc.ExecuteResult
	status      *paymentsvc.PaymentResult
	err         error
	lastCreate  paymentsvc.CreatePaymentInput
	lastExecute paymentsvc.ExecutePaymentInput
	lastCard    paymentsvc.CardPaymentInput
	lastStatus  string
}

func (s *stubPaymentService) Create(ctx context.Context, input paymentsvc.CreatePaymentInput) (*paymentsvc.CreateResult, error) {
	s.lastCreate = input
	return s.created, s.err
}

func (s *stubPaymentService) Execute(ctx context.Context, input paymentsvc.ExecutePaymentInput) (*paymentsvc.ExecuteResult, error) {
	s.lastExecute = input
	return s.executed, s.err
}

func (s *stubPaymentService) Status(ctx context.Context, provider enums.PaymentMethod, paymentID string) (*paymentsvc.PaymentResult, error) {
	s.lastStatus = paymentID
	return s.status, s.err
}

func (s *stubPaymentService) ProcessCard(ctx context.Context, input paymentsvc.CardPaymentInput) (*paymentsvc.ExecuteResult, error) {
	s.lastCard = input
	return s.executed, s.err
}

func withParams(req *http.Request, params map[string]string) *http.Request {
	rc := chi.NewRouteContext()
	for key, value := range params {
		rc.URLParams.Add(key, value)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(middleware.WithSessionID(ctx, "sess-1"))
}

func TestCreateRoutesProviderAndSession(t *testing.T) {
	svc := &stubPaymentService{created: &paymentsvc.CreateResult{PaymentID: "pi_1", ClientSecret: "secret"}}
	req := httptest.NewRequest(http.MethodPost, "/api/payments/stripe/create", strings.NewReader(`{"orderNumber":"MS-1"}`))
	req = withParams(req, map[string]string{"provider": "stripe"})
	resp := httptest.NewRecorder()

	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastCreate.Provider != enums.PaymentMethodStripe || svc.lastCreate.SessionID != "sess-1" || svc.lastCreate.OrderNumber != "MS-1" {
		t.Fatalf("unexpected create input: %+v", svc.lastCreate)
	}
	if !strings.Contains(resp.Body.String(), `"clientSecret":"secret"`) {
		t.Fatalf("expected client secret in body: %s", resp.Body.String())
	}
}

func TestCreateRejectsUnknownProvider(t *testing.T) {
	svc := &stubPaymentService{}
	req := httptest.NewRequest(http.MethodPost, "/api/payments/bitcoin/create", strings.NewReader(`{"orderNumber":"MS-1"}`))
	req = withParams(req, map[string]string{"provider": "bitcoin"})
	resp := httptest.NewRecorder()

	Create(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestExecuteRequiresPaymentID(t *testing.T) {
	svc := &stubPaymentService{}
	req := httptest.NewRequest(http.MethodPost, "/api/payments/paypal/execute", strings.NewReader(`{"orderNumber":"MS-1"}`))
	req = withParams(req, map[string]string{"provider": "paypal"})
	resp := httptest.NewRecorder()

	Execute(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestExecuteGatewayFailure(t *testing.T) {
	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeGateway, "paypal unavailable")}
	body := `{"orderNumber":"MS-1","paymentId":"PAY-1","payerId":"PAYER"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/paypal/execute", strings.NewReader(body))
	req = withParams(req, map[string]string{"provider": "paypal"})
	resp := httptest.NewRecorder()

	Execute(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", resp.Code)
	}
	if svc.lastExecute.PayerID != "PAYER" || svc.lastExecute.Provider != enums.PaymentMethodPayPal {
		t.Fatalf("unexpected execute input: %+v", svc.lastExecute)
	}
}

func TestStatusPassesPaymentID(t *testing.T) {
	svc := &stubPaymentService{status: &paymentsvc.PaymentResult{PaymentID: "pi_1", State: paymentsvc.StateSucceeded}}
	req := httptest.NewRequest(http.MethodGet, "/api/payments/stripe/status/pi_1", nil)
	req = withParams(req, map[string]string{"provider": "stripe", "paymentId": "pi_1"})
	resp := httptest.NewRecorder()

	Status(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastStatus != "pi_1" {
		t.Fatalf("unexpected payment id %q", svc.lastStatus)
	}
}

func TestProcessCard(t *testing.T) {
	svc := &stubPaymentService{executed: &paymentsvc.ExecuteResult{Payment: &paymentsvc.PaymentResult{PaymentID: "sq_1"}}}
	body := `{"orderNumber":"MS-1","sourceId":"cnon:card-nonce-ok"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/card/process", strings.NewReader(body))
	req = withParams(req, nil)
	resp := httptest.NewRecorder()

	ProcessCard(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastCard.SourceID != "cnon:card-nonce-ok" || svc.lastCard.SessionID != "sess-1" {
		t.Fatalf("unexpected card input: %+v", svc.lastCard)
	}
}
