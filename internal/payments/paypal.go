package payments

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

// PayPal sandbox payment states, mirroring the REST v1 payment resource.
const (
	paypalCreated  = "created"
	paypalApproved = "approved"
	paypalFailed   = "failed"
)

type sandboxPayment struct {
	id          string
	orderNumber string
	amount      decimal.Decimal
	currency    string
	email       string
	state       string
	payerID     string
	createdAt   time.Time
}

// PayPalSandbox is an in-process stand-in for PayPal used in development.
// Payments live in memory; a payer id starting with "FAIL" declines.
type PayPalSandbox struct {
	mu        sync.Mutex
	payments  map[string]*sandboxPayment
	returnURL string
	cancelURL string
	now       func() time.Time
}

// NewPayPalSandbox builds the sandbox gateway from config.
func NewPayPalSandbox(cfg config.PayPalConfig) *PayPalSandbox {
	return &PayPalSandbox{
		payments:  make(map[string]*sandboxPayment),
		returnURL: cfg.ReturnURL,
		cancelURL: cfg.CancelURL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (p *PayPalSandbox) Name() enums.PaymentMethod {
	return enums.PaymentMethodPayPal
}

func (p *PayPalSandbox) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	payment := &sandboxPayment{
		id:          "PAYID-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:20]),
		orderNumber: req.OrderNumber,
		amount:      req.Amount,
		currency:    normalizeCurrency(req.Currency),
		email:       req.Email,
		state:       paypalCreated,
		createdAt:   p.now(),
	}

	p.mu.Lock()
	p.payments[payment.id] = payment
	p.mu.Unlock()

	return &CreateResult{
		PaymentID:   payment.id,
		ApprovalURL: approvalURL(p.returnURL, payment.id, req.OrderNumber),
		State:       StatePending,
		Payment:     payment.result(),
	}, nil
}

func (p *PayPalSandbox) Execute(ctx context.Context, req ExecuteRequest) (*PaymentResult, error) {
	if strings.TrimSpace(req.PayerID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer id is required").
			WithDetails(map[string]any{"field": "payerId"})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	payment, ok := p.payments[req.PaymentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "paypal payment not found")
	}
	if err := ensureOwner(payment.result(), req.OrderNumber); err != nil {
		return nil, err
	}
	if payment.state == paypalCreated {
		payment.payerID = req.PayerID
		payment.state = paypalApproved
		if strings.HasPrefix(strings.ToUpper(req.PayerID), "FAIL") {
			payment.state = paypalFailed
		}
	}
	return payment.result(), nil
}

func (p *PayPalSandbox) Status(ctx context.Context, paymentID string) (*PaymentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	payment, ok := p.payments[paymentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "paypal payment not found")
	}
	return payment.result(), nil
}

func (s *sandboxPayment) result() *PaymentResult {
	out := &PaymentResult{
		PaymentID:     s.id,
		OrderNumber:   s.orderNumber,
		ProviderState: s.state,
		TransactionID: s.id,
		Amount:        s.amount,
		Currency:      s.currency,
		PayerEmail:    s.email,
		State:         StatePending,
	}
	switch s.state {
	case paypalApproved:
		out.State = StateSucceeded
	case paypalFailed:
		out.State = StateFailed
		out.FailureReason = "payer declined"
	}
	return out
}

func approvalURL(base, paymentID, orderNumber string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return ""
	}
	q := u.Query()
	q.Set("paymentId", paymentID)
	q.Set("orderNumber", orderNumber)
	q.Set("PayerID", "SANDBOX-"+paymentID[len(paymentID)-6:])
	u.RawQuery = q.Encode()
	return u.String()
}
