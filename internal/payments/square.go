package payments

import (
	"context"
	"errors"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/square"
)

// SquarePaymentsAPI is the subset of the Square client used by the card
// gateway.
type SquarePaymentsAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

type squareGateway struct {
	api      SquarePaymentsAPI
	currency string
}

// NewSquareGateway builds the card gateway. Card payments are charged on
// create with a tokenized source from the Square web payments form.
func NewSquareGateway(api SquarePaymentsAPI, currency string) (Gateway, error) {
	if api == nil {
		return nil, errors.New("square client required")
	}
	return &squareGateway{api: api, currency: normalizeCurrency(currency)}, nil
}

func (g *squareGateway) Name() enums.PaymentMethod {
	return enums.PaymentMethodCard
}

func (g *squareGateway) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if strings.TrimSpace(req.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card source id is required").
			WithDetails(map[string]any{"field": "sourceId"})
	}
	payment, err := g.api.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    toCents(req.Amount),
		Currency:       g.currency,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		Note:           req.Description,
		ReferenceID:    req.OrderNumber,
		BuyerEmail:     req.Email,
		Autocomplete:   true,
	})
	if err != nil {
		return nil, err
	}
	result := squareResult(payment)
	return &CreateResult{
		PaymentID: result.PaymentID,
		State:     result.State,
		Payment:   result,
	}, nil
}

// Execute re-reads the payment; card payments settle on create. The
// payment's reference id must name the order being settled.
func (g *squareGateway) Execute(ctx context.Context, req ExecuteRequest) (*PaymentResult, error) {
	result, err := g.Status(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if err := ensureOwner(result, req.OrderNumber); err != nil {
		return nil, err
	}
	return result, nil
}

func (g *squareGateway) Status(ctx context.Context, paymentID string) (*PaymentResult, error) {
	payment, err := g.api.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return squareResult(payment), nil
}

func squareResult(payment *sq.Payment) *PaymentResult {
	status := strings.ToUpper(stringValue(payment.GetStatus()))
	result := &PaymentResult{
		PaymentID:     stringValue(payment.GetID()),
		OrderNumber:   stringValue(payment.GetReferenceID()),
		ProviderState: status,
		TransactionID: stringValue(payment.GetID()),
		PayerEmail:    stringValue(payment.GetBuyerEmailAddress()),
		Currency:      "USD",
	}
	if money := payment.GetAmountMoney(); money != nil {
		if amount := money.GetAmount(); amount != nil {
			result.Amount = fromCents(*amount)
		}
		if currency := money.GetCurrency(); currency != nil {
			result.Currency = normalizeCurrency(string(*currency))
		}
	}
	switch status {
	case "COMPLETED", "APPROVED":
		result.State = StateSucceeded
	case "FAILED", "CANCELED":
		result.State = StateFailed
		result.FailureReason = strings.ToLower(status)
	default:
		result.State = StatePending
	}
	return result
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
