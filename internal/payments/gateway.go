package payments

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

// PaymentState is the provider-neutral state of a payment.
type PaymentState string

const (
	StatePending   PaymentState = "pending"
	StateSucceeded PaymentState = "succeeded"
	StateFailed    PaymentState = "failed"
)

// Gateway is the opaque contract every payment provider adapter satisfies.
type Gateway interface {
	Name() enums.PaymentMethod
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Execute(ctx context.Context, req ExecuteRequest) (*PaymentResult, error)
	Status(ctx context.Context, paymentID string) (*PaymentResult, error)
}

// CreateRequest asks a provider to start a payment for an order total.
type CreateRequest struct {
	OrderNumber    string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	Email          string
	IdempotencyKey string
	// SourceID is a tokenized card for providers that charge on create.
	SourceID string
}

// CreateResult carries what the client needs to finish the payment.
type CreateResult struct {
	PaymentID    string         `json:"paymentId"`
	ApprovalURL  string         `json:"approvalUrl,omitempty"`
	ClientSecret string         `json:"clientSecret,omitempty"`
	State        PaymentState   `json:"state"`
	Payment      *PaymentResult `json:"-"`
}

// ExecuteRequest completes a payment the payer already approved.
type ExecuteRequest struct {
	OrderNumber string
	PaymentID   string
	PayerID     string
}

// PaymentResult is a provider's view of a payment.
type PaymentResult struct {
	PaymentID     string          `json:"paymentId"`
	OrderNumber   string          `json:"orderNumber,omitempty"`
	State         PaymentState    `json:"state"`
	ProviderState string          `json:"providerState"`
	TransactionID string          `json:"transactionId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PayerEmail    string          `json:"payerEmail,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
}

// ensureOwner rejects a provider payment that was not opened for
// orderNumber. A payment carrying no order reference is rejected too.
func ensureOwner(result *PaymentResult, orderNumber string) error {
	if result == nil || result.OrderNumber == "" || result.OrderNumber != orderNumber {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment does not belong to order").
			WithDetails(map[string]any{"orderNumber": orderNumber})
	}
	return nil
}

// toCents converts a money amount into minor units.
func toCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "USD"
	}
	return code
}
