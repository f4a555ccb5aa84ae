package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/mycoshop-backend/pkg/stripe"
)

// metadataOrderNumber links a PaymentIntent back to its order.
const metadataOrderNumber = "order_number"

// PaymentIntentAPI is the subset of Stripe used by the gateway.
type PaymentIntentAPI interface {
	Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type paymentIntentClient struct{}

// NewPaymentIntentAPI returns the live PaymentIntent client. The Stripe key
// is installed globally by pkg/stripe.NewClient.
func NewPaymentIntentAPI(client *pkgstripe.Client) PaymentIntentAPI {
	if client == nil {
		return nil
	}
	return paymentIntentClient{}
}

func (paymentIntentClient) Create(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (paymentIntentClient) Confirm(ctx context.Context, id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Confirm(id, params)
}

func (paymentIntentClient) Get(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Get(id, params)
}

type stripeGateway struct {
	api      PaymentIntentAPI
	currency string
}

// NewStripeGateway builds the Stripe PaymentIntent gateway.
func NewStripeGateway(api PaymentIntentAPI, currency string) (Gateway, error) {
	if api == nil {
		return nil, errors.New("stripe payment intent api required")
	}
	return &stripeGateway{api: api, currency: strings.ToLower(normalizeCurrency(currency))}, nil
}

func (g *stripeGateway) Name() enums.PaymentMethod {
	return enums.PaymentMethodStripe
}

// Create opens a PaymentIntent; the browser confirms it with the client
// secret.
func (g *stripeGateway) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toCents(req.Amount)),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.AddMetadata(metadataOrderNumber, req.OrderNumber)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	intent, err := g.api.Create(ctx, params)
	if err != nil {
		return nil, mapStripeError(err, "create payment intent")
	}
	result := intentResult(intent)
	return &CreateResult{
		PaymentID:    intent.ID,
		ClientSecret: intent.ClientSecret,
		State:        result.State,
		Payment:      result,
	}, nil
}

// Execute confirms an intent still awaiting confirmation and reports its
// final state.
func (g *stripeGateway) Execute(ctx context.Context, req ExecuteRequest) (*PaymentResult, error) {
	intent, err := g.api.Get(ctx, req.PaymentID, &stripe.PaymentIntentParams{})
	if err != nil {
		return nil, mapStripeError(err, "retrieve payment intent")
	}
	if err := ensureOwner(intentResult(intent), req.OrderNumber); err != nil {
		return nil, err
	}
	if intent.Status == stripe.PaymentIntentStatusRequiresConfirmation {
		intent, err = g.api.Confirm(ctx, req.PaymentID, &stripe.PaymentIntentConfirmParams{})
		if err != nil {
			return nil, mapStripeError(err, "confirm payment intent")
		}
	}
	return intentResult(intent), nil
}

func (g *stripeGateway) Status(ctx context.Context, paymentID string) (*PaymentResult, error) {
	intent, err := g.api.Get(ctx, paymentID, &stripe.PaymentIntentParams{})
	if err != nil {
		return nil, mapStripeError(err, "retrieve payment intent")
	}
	return intentResult(intent), nil
}

func intentResult(intent *stripe.PaymentIntent) *PaymentResult {
	result := &PaymentResult{
		PaymentID:     intent.ID,
		OrderNumber:   intent.Metadata[metadataOrderNumber],
		ProviderState: string(intent.Status),
		TransactionID: intent.ID,
		Amount:        fromCents(intent.Amount),
		Currency:      normalizeCurrency(string(intent.Currency)),
		PayerEmail:    intent.ReceiptEmail,
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.State = StateSucceeded
	case stripe.PaymentIntentStatusCanceled:
		result.State = StateFailed
		result.FailureReason = string(intent.CancellationReason)
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if intent.LastPaymentError != nil {
			result.State = StateFailed
			result.FailureReason = intent.LastPaymentError.Msg
		} else {
			result.State = StatePending
		}
	default:
		result.State = StatePending
	}
	return result
}

func mapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == 404:
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, op)
		case stripeErr.Type == stripe.ErrorTypeCard:
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, stripeErr.Msg)
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, op)
		case stripeErr.Type == stripe.ErrorTypeIdempotency:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, op)
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, op)
}
