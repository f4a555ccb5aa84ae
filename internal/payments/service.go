package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/mycoshop-backend/internal/orders"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

type orderService interface {
	Find(ctx context.Context, orderNumber string) (*models.Order, error)
	RecordPaymentOutcome(ctx context.Context, input orders.PaymentOutcomeInput) (*orders.OrderDTO, error)
}

// Service drives provider payments for orders and reports their outcome to
// the order state machine.
type Service interface {
	Create(ctx context.Context, input CreatePaymentInput) (*CreateResult, error)
	Execute(ctx context.Context, input ExecutePaymentInput) (*ExecuteResult, error)
	Status(ctx context.Context, provider enums.PaymentMethod, paymentID string) (*PaymentResult, error)
	ProcessCard(ctx context.Context, input CardPaymentInput) (*ExecuteResult, error)
}

// CreatePaymentInput starts a provider payment for an order.
type CreatePaymentInput struct {
	Provider    enums.PaymentMethod `json:"-"`
	SessionID   string              `json:"-"`
	OrderNumber string              `json:"orderNumber" validate:"required,max=64"`
}

// ExecutePaymentInput completes an approved provider payment.
type ExecutePaymentInput struct {
	Provider    enums.PaymentMethod `json:"-"`
	SessionID   string              `json:"-"`
	OrderNumber string              `json:"orderNumber" validate:"required,max=64"`
	PaymentID   string              `json:"paymentId" validate:"required,max=255"`
	PayerID     string              `json:"payerId,omitempty" validate:"omitempty,max=255"`
}

// CardPaymentInput charges a tokenized card.
type CardPaymentInput struct {
	SessionID   string `json:"-"`
	OrderNumber string `json:"orderNumber" validate:"required,max=64"`
	SourceID    string `json:"sourceId" validate:"required,max=255"`
}

// ExecuteResult pairs the provider view with the updated order.
type ExecuteResult struct {
	Payment *PaymentResult   `json:"payment"`
	Order   *orders.OrderDTO `json:"order"`
}

type service struct {
	gateways map[enums.PaymentMethod]Gateway
	orders   orderService
	logg     *logger.Logger
}

// NewService registers the available gateways. Providers without a gateway
// answer with a validation error.
func NewService(orderSvc orderService, logg *logger.Logger, gateways ...Gateway) (Service, error) {
	if orderSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	registry := make(map[enums.PaymentMethod]Gateway, len(gateways))
	for _, gateway := range gateways {
		if gateway == nil {
			continue
		}
		registry[gateway.Name()] = gateway
	}
	return &service{gateways: registry, orders: orderSvc, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreatePaymentInput) (*CreateResult, error) {
	gateway, err := s.gateway(input.Provider)
	if err != nil {
		return nil, err
	}
	order, err := s.payableOrder(ctx, input.OrderNumber, input.SessionID)
	if err != nil {
		return nil, err
	}
	return gateway.Create(ctx, createRequest(order, input.Provider, ""))
}

// Execute finishes the provider payment and records the outcome. A payment
// still pending at the provider leaves the order untouched.
func (s *service) Execute(ctx context.Context, input ExecutePaymentInput) (*ExecuteResult, error) {
	gateway, err := s.gateway(input.Provider)
	if err != nil {
		return nil, err
	}
	order, err := s.ownedOrder(ctx, input.OrderNumber, input.SessionID)
	if err != nil {
		return nil, err
	}
	result, err := gateway.Execute(ctx, ExecuteRequest{
		OrderNumber: order.OrderNumber,
		PaymentID:   strings.TrimSpace(input.PaymentID),
		PayerID:     strings.TrimSpace(input.PayerID),
	})
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, order, input.Provider, result)
}

func (s *service) Status(ctx context.Context, provider enums.PaymentMethod, paymentID string) (*PaymentResult, error) {
	gateway, err := s.gateway(provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(paymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	return gateway.Status(ctx, strings.TrimSpace(paymentID))
}

// ProcessCard charges a card in one step and records the outcome.
func (s *service) ProcessCard(ctx context.Context, input CardPaymentInput) (*ExecuteResult, error) {
	gateway, err := s.gateway(enums.PaymentMethodCard)
	if err != nil {
		return nil, err
	}
	order, err := s.payableOrder(ctx, input.OrderNumber, input.SessionID)
	if err != nil {
		return nil, err
	}
	created, err := gateway.Create(ctx, createRequest(order, enums.PaymentMethodCard, strings.TrimSpace(input.SourceID)))
	if err != nil {
		return nil, err
	}
	result := created.Payment
	if result == nil {
		result = &PaymentResult{PaymentID: created.PaymentID, TransactionID: created.PaymentID, State: created.State}
	}
	return s.settle(ctx, order, enums.PaymentMethodCard, result)
}

// settle maps a provider result onto RecordPaymentOutcome.
func (s *service) settle(ctx context.Context, order *models.Order, provider enums.PaymentMethod, result *PaymentResult) (*ExecuteResult, error) {
	input := orders.PaymentOutcomeInput{
		OrderNumber:   order.OrderNumber,
		TransactionID: result.TransactionID,
		ActorRole:     outbox.ActorRoleGateway,
		Details: types.PaymentDetails{
			Provider:    provider.String(),
			ProviderRef: result.PaymentID,
			PayerEmail:  result.PayerEmail,
			Currency:    result.Currency,
		},
	}
	if !result.Amount.IsZero() {
		amount := result.Amount
		input.Details.Amount = &amount
	}

	switch result.State {
	case StateSucceeded:
		if !result.Amount.IsZero() && !pricing.Round(result.Amount).Equal(pricing.Round(order.Total)) {
			input.Outcome = orders.PaymentOutcomeFailure
			input.Reason = fmt.Sprintf("amount mismatch: charged %s, order total %s", pricing.Format(result.Amount), pricing.Format(order.Total))
			if s.logg != nil {
				logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
				s.logg.Warn(s.logg.WithField(logCtx, "payment_id", result.PaymentID), "payment amount does not match order total")
			}
		} else {
			input.Outcome = orders.PaymentOutcomeSuccess
		}
	case StateFailed:
		input.Outcome = orders.PaymentOutcomeFailure
		input.Reason = result.FailureReason
	default:
		current, err := s.orders.Find(ctx, order.OrderNumber)
		if err != nil {
			return nil, err
		}
		return &ExecuteResult{Payment: result, Order: orders.NewOrderDTO(current)}, nil
	}

	updated, err := s.orders.RecordPaymentOutcome(ctx, input)
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{Payment: result, Order: updated}, nil
}

func (s *service) gateway(provider enums.PaymentMethod) (Gateway, error) {
	gateway, ok := s.gateways[provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider").
			WithDetails(map[string]any{"provider": provider})
	}
	return gateway, nil
}

func (s *service) ownedOrder(ctx context.Context, orderNumber, sessionID string) (*models.Order, error) {
	order, err := s.orders.Find(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.SessionID != sessionID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) payableOrder(ctx context.Context, orderNumber, sessionID string) (*models.Order, error) {
	order, err := s.ownedOrder(ctx, orderNumber, sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case order.PaymentStatus == enums.PaymentStatusCompleted:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order has already been paid")
	case order.Status == enums.OrderStatusCancelled || order.PaymentStatus == enums.PaymentStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is cancelled")
	}
	return order, nil
}

func createRequest(order *models.Order, provider enums.PaymentMethod, sourceID string) CreateRequest {
	key := "order-" + order.OrderNumber + "-" + provider.String()
	if sourceID != "" {
		// a new card token is a new attempt; Square caps keys at 45 chars
		key += "-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(sourceID)).String()[:8]
	}
	return CreateRequest{
		OrderNumber:    order.OrderNumber,
		Amount:         order.Total,
		Currency:       "USD",
		Description:    "MycoShop order #" + order.OrderNumber,
		Email:          order.ShippingAddress.Email,
		IdempotencyKey: key,
		SourceID:       sourceID,
	}
}
