package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/mycoshop-backend/internal/orders"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

const metadataOrderNumber = "order_number"

type outcomeRecorder interface {
	RecordPaymentOutcome(ctx context.Context, input orders.PaymentOutcomeInput) (*orders.OrderDTO, error)
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type ServiceParams struct {
	Orders outcomeRecorder
	// Guard is optional; without it duplicate deliveries rely on the order
	// state machine being idempotent.
	Guard  eventGuard
	Logger *logger.Logger
}

type Service struct {
	orders outcomeRecorder
	guard  eventGuard
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	return &Service{
		orders: params.Orders,
		guard:  params.Guard,
		logg:   params.Logger,
	}, nil
}

// HandleEvent applies PaymentIntent outcomes to orders. Other event types are
// acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	var outcome orders.PaymentOutcome
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		outcome = orders.PaymentOutcomeSuccess
	case stripe.EventTypePaymentIntentPaymentFailed:
		outcome = orders.PaymentOutcomeFailure
	default:
		return nil
	}

	if s.guard != nil && event.ID != "" {
		seen, err := s.guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check stripe event")
		}
		if seen {
			return nil
		}
	}

	err := s.apply(ctx, event, outcome)
	if err != nil && s.guard != nil && event.ID != "" {
		if delErr := s.guard.Delete(ctx, event.ID); delErr != nil && s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "event_id", event.ID), "release stripe event marker", delErr)
		}
	}
	return err
}

func (s *Service) apply(ctx context.Context, event *stripe.Event, outcome orders.PaymentOutcome) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	orderNumber := strings.TrimSpace(intent.Metadata[metadataOrderNumber])
	if orderNumber == "" {
		// not one of ours
		return nil
	}

	amount := decimal.New(intent.Amount, -2)
	input := orders.PaymentOutcomeInput{
		OrderNumber:   orderNumber,
		Outcome:       outcome,
		TransactionID: intent.ID,
		ActorRole:     outbox.ActorRoleGateway,
		Details: types.PaymentDetails{
			Provider:    enums.PaymentMethodStripe.String(),
			ProviderRef: intent.ID,
			PayerEmail:  intent.ReceiptEmail,
			Amount:      &amount,
			Currency:    strings.ToUpper(string(intent.Currency)),
		},
	}
	if outcome == orders.PaymentOutcomeFailure && intent.LastPaymentError != nil {
		input.Reason = intent.LastPaymentError.Msg
	}

	ctx = s.withOrder(ctx, orderNumber)
	if _, err := s.orders.RecordPaymentOutcome(ctx, input); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "event_type", string(event.Type)), "stripe event does not apply to order")
			}
			return nil
		}
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "event_type", string(event.Type)), "stripe payment outcome recorded")
	}
	return nil
}

func (s *Service) withOrder(ctx context.Context, orderNumber string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithOrderNumber(ctx, orderNumber)
}
