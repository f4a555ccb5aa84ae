package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/internal/cart"
	"github.com/angelmondragon/mycoshop-backend/pkg/db"
	"github.com/angelmondragon/mycoshop-backend/pkg/db/models"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/mycoshop-backend/pkg/pagination"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
	"github.com/angelmondragon/mycoshop-backend/pkg/types"
)

const (
	maxNotesLength      = 500
	maxOrderNumberTries = 3

	noteOrderCreated    = "Order created"
	notePaymentComplete = "Payment completed"
	noteCanceledByOwner = "Order cancelled by customer"
	notePaymentRefunded = "Payment refunded"
)

// Service defines the order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*OrderDTO, error)
	Get(ctx context.Context, orderNumber, sessionID string) (*OrderDTO, error)
	Find(ctx context.Context, orderNumber string) (*models.Order, error)
	List(ctx context.Context, sessionID string, params pagination.Params) (*OrderList, error)
	ListAll(ctx context.Context, filters AdminOrderFilters, params pagination.Params) (*OrderList, error)
	RecordPaymentOutcome(ctx context.Context, input PaymentOutcomeInput) (*OrderDTO, error)
	Cancel(ctx context.Context, orderNumber, sessionID string) (*OrderDTO, error)
	UpdateFulfillmentStatus(ctx context.Context, input FulfillmentUpdateInput) (*OrderDTO, error)
	CancelStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// CreateOrderInput is the checkout request after boundary validation.
type CreateOrderInput struct {
	SessionID       string                `json:"-"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress" validate:"required"`
	PaymentMethod   enums.PaymentMethod   `json:"paymentMethod" validate:"required,oneof=paypal stripe card"`
	Notes           *string               `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// PaymentOutcome is the result a gateway reported for an order.
type PaymentOutcome string

const (
	PaymentOutcomeSuccess PaymentOutcome = "success"
	PaymentOutcomeFailure PaymentOutcome = "failure"
	// PaymentOutcomeRefund reverses a completed payment. Inventory is not
	// restocked; returned goods are counted back by an operator.
	PaymentOutcomeRefund PaymentOutcome = "refund"
)

// PaymentOutcomeInput records a gateway result against an order.
type PaymentOutcomeInput struct {
	OrderNumber   string               `json:"-"`
	Outcome       PaymentOutcome       `json:"outcome" validate:"required,oneof=success failure refund"`
	TransactionID string               `json:"transactionId,omitempty" validate:"omitempty,max=255"`
	Details       types.PaymentDetails `json:"paymentDetails"`
	Reason        string               `json:"reason,omitempty" validate:"omitempty,max=500"`
	ActorRole     string               `json:"-"`
}

// FulfillmentUpdateInput is the operator status update.
type FulfillmentUpdateInput struct {
	OrderNumber string            `json:"-"`
	Status      enums.OrderStatus `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
	Note        string            `json:"note,omitempty" validate:"omitempty,max=500"`
	Tracking    *types.Tracking   `json:"tracking,omitempty"`
}

// ServiceParams bundles the dependencies of the order service.
type ServiceParams struct {
	Repo      Repository
	Carts     cart.CartRepository
	Inventory InventoryKeeper
	Tx        txRunner
	Outbox    outboxPublisher
	Engine    *pricing.Engine
	Logger    *logger.Logger
	// Numbers generates order numbers; defaults to NewOrderNumber.
	Numbers func(time.Time) string
	Now     func() time.Time
}

type service struct {
	repo      Repository
	carts     cart.CartRepository
	inventory InventoryKeeper
	tx        txRunner
	outbox    outboxPublisher
	engine    *pricing.Engine
	logg      *logger.Logger
	numbers   func(time.Time) string
	now       func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory keeper required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	svc := &service{
		repo:      params.Repo,
		carts:     params.Carts,
		inventory: params.Inventory,
		tx:        params.Tx,
		outbox:    params.Outbox,
		engine:    params.Engine,
		logg:      params.Logger,
		numbers:   params.Numbers,
		now:       params.Now,
	}
	if svc.engine == nil {
		svc.engine = pricing.NewEngine()
	}
	if svc.numbers == nil {
		svc.numbers = NewOrderNumber
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc, nil
}

// Create snapshots the session cart into a pending order. Stock is verified
// but not consumed and the cart is left untouched.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method").
			WithDetails(map[string]any{"field": "paymentMethod"})
	}
	notes, err := normalizeNotes(input.Notes)
	if err != nil {
		return nil, err
	}

	current, err := s.carts.FindBySession(ctx, input.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		}
		return nil, storeError(err, "load cart")
	}
	if len(current.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	totals, err := s.engine.ComputeTotals(current.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		SessionID:       input.SessionID,
		Items:           current.Items.Clone(),
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		Shipping:        totals.Shipping,
		Total:           totals.Total,
		ShippingAddress: input.ShippingAddress.Normalize(),
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusPending,
		Status:          enums.OrderStatusPending,
		StatusHistory:   types.StatusHistory{}.Append(enums.OrderStatusPending, noteOrderCreated, now),
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for attempt := 1; ; attempt++ {
		order.OrderNumber = s.numbers(now)
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.inventory.Verify(ctx, tx, order.Items); err != nil {
				return err
			}
			if _, err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         &outbox.ActorRef{SessionID: order.SessionID, Role: outbox.ActorRoleShopper},
				OccurredAt:    now,
				Data: payloads.OrderCreatedEvent{
					OrderID:       order.ID,
					OrderNumber:   order.OrderNumber,
					SessionID:     order.SessionID,
					ItemCount:     order.Items.TotalQuantity(),
					Items:         payloads.ItemsFrom(order.Items),
					Subtotal:      order.Subtotal,
					Tax:           order.Tax,
					Shipping:      order.Shipping,
					Total:         order.Total,
					PaymentMethod: order.PaymentMethod,
					Email:         order.ShippingAddress.Email,
					CreatedAt:     now,
				},
			})
		})
		if err == nil {
			break
		}
		if attempt < maxOrderNumberTries && db.IsUniqueViolation(err, "order_number") {
			continue
		}
		return nil, storeError(err, "create order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(s.logg.WithSessionID(ctx, order.SessionID), order.OrderNumber)
		s.logg.Info(s.logg.WithField(logCtx, "total", pricing.Format(order.Total)), "order created")
	}
	return NewOrderDTO(order), nil
}

func (s *service) Get(ctx context.Context, orderNumber, sessionID string) (*OrderDTO, error) {
	order, err := s.load(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.SessionID != sessionID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return NewOrderDTO(order), nil
}

// Find loads an order without an ownership check, for gateway and operator
// flows.
func (s *service) Find(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.load(ctx, orderNumber)
}

func (s *service) List(ctx context.Context, sessionID string, params pagination.Params) (*OrderList, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	params = params.Normalize()
	rows, total, err := s.repo.ListBySession(ctx, sessionID, params)
	if err != nil {
		return nil, storeError(err, "list orders")
	}
	return newOrderList(rows, params, total), nil
}

func (s *service) ListAll(ctx context.Context, filters AdminOrderFilters, params pagination.Params) (*OrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if filters.PaymentStatus != nil && !filters.PaymentStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status filter")
	}
	params = params.Normalize()
	rows, total, err := s.repo.ListAll(ctx, filters, params)
	if err != nil {
		return nil, storeError(err, "list orders")
	}
	return newOrderList(rows, params, total), nil
}

// RecordPaymentOutcome applies a gateway result. A success moves a pending
// payment to completed, consumes stock and converts the cart in one
// transaction; repeating it returns the stored order unchanged. A refund
// is only accepted for a completed payment.
func (s *service) RecordPaymentOutcome(ctx context.Context, input PaymentOutcomeInput) (*OrderDTO, error) {
	switch input.Outcome {
	case PaymentOutcomeSuccess, PaymentOutcomeFailure, PaymentOutcomeRefund:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment outcome").
			WithDetails(map[string]any{"field": "outcome"})
	}

	order, err := s.load(ctx, input.OrderNumber)
	if err != nil {
		return nil, err
	}
	if input.Outcome == PaymentOutcomeRefund {
		return s.refundPayment(ctx, order, input)
	}
	if order.Status == enums.OrderStatusCancelled || order.PaymentStatus == enums.PaymentStatusCancelled {
		return nil, invalidTransition(order, "order is cancelled")
	}

	if input.Outcome == PaymentOutcomeSuccess {
		return s.completePayment(ctx, order, input)
	}
	return s.failPayment(ctx, order, input)
}

func (s *service) completePayment(ctx context.Context, order *models.Order, input PaymentOutcomeInput) (*OrderDTO, error) {
	switch order.PaymentStatus {
	case enums.PaymentStatusCompleted:
		return NewOrderDTO(order), nil
	case enums.PaymentStatusPending, enums.PaymentStatusFailed:
	default:
		return nil, invalidTransition(order, "payment cannot be completed")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, invalidTransition(order, "payment cannot be completed")
	}

	now := s.now()
	details := paymentDetails(order, input, now)
	var transactionID *string
	if id := strings.TrimSpace(input.TransactionID); id != "" {
		transactionID = &id
	}
	history := order.StatusHistory.Append(enums.OrderStatusProcessing, notePaymentComplete, now)

	won := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateIf(ctx, order.ID, Guard{
			Statuses:        []enums.OrderStatus{enums.OrderStatusPending},
			PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed},
		}, map[string]any{
			"payment_status":  enums.PaymentStatusCompleted,
			"status":          enums.OrderStatusProcessing,
			"transaction_id":  transactionID,
			"payment_details": details,
			"status_history":  history,
			"updated_at":      now,
		})
		if err != nil || !ok {
			return err
		}
		if err := s.inventory.Decrement(ctx, tx, order.Items); err != nil {
			return err
		}
		if err := s.carts.WithTx(tx).ClearAndConvert(ctx, order.SessionID); err != nil {
			return err
		}
		won = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorFor(input.ActorRole, order.SessionID),
			OccurredAt:    now,
			Data: payloads.OrderPaidEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				SessionID:     order.SessionID,
				Items:         payloads.ItemsFrom(order.Items),
				Subtotal:      order.Subtotal,
				Tax:           order.Tax,
				Shipping:      order.Shipping,
				Total:         order.Total,
				PaymentMethod: order.PaymentMethod,
				TransactionID: input.TransactionID,
				Email:         order.ShippingAddress.Email,
				CustomerName:  order.ShippingAddress.FullName(),
				PaidAt:        now,
			},
		})
	})
	if err != nil {
		return nil, storeError(err, "record payment")
	}

	latest, err := s.load(ctx, order.OrderNumber)
	if err != nil {
		return nil, err
	}
	if !won && latest.PaymentStatus != enums.PaymentStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed while recording payment, please retry")
	}
	if won && s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
		s.logg.Info(s.logg.WithField(logCtx, "transaction_id", input.TransactionID), "order paid")
	}
	return NewOrderDTO(latest), nil
}

func (s *service) failPayment(ctx context.Context, order *models.Order, input PaymentOutcomeInput) (*OrderDTO, error) {
	switch order.PaymentStatus {
	case enums.PaymentStatusPending, enums.PaymentStatusFailed:
	default:
		return nil, invalidTransition(order, "payment already settled")
	}

	now := s.now()
	details := paymentDetails(order, input, now)
	details.CapturedAt = nil
	if details.Reason == "" {
		details.Reason = strings.TrimSpace(input.Reason)
	}

	won := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateIf(ctx, order.ID, Guard{
			Statuses:        []enums.OrderStatus{enums.OrderStatusPending},
			PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed},
		}, map[string]any{
			"payment_status":  enums.PaymentStatusFailed,
			"payment_details": details,
			"updated_at":      now,
		})
		if err != nil || !ok {
			return err
		}
		won = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorFor(input.ActorRole, order.SessionID),
			OccurredAt:    now,
			Data: payloads.PaymentFailedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				PaymentMethod: order.PaymentMethod,
				Reason:        details.Reason,
				FailedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, storeError(err, "record payment failure")
	}
	if !won {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed while recording payment, please retry")
	}
	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
		s.logg.Warn(s.logg.WithField(logCtx, "reason", details.Reason), "payment failed")
	}
	return s.dto(ctx, order.OrderNumber)
}

func (s *service) refundPayment(ctx context.Context, order *models.Order, input PaymentOutcomeInput) (*OrderDTO, error) {
	switch order.PaymentStatus {
	case enums.PaymentStatusRefunded:
		return NewOrderDTO(order), nil
	case enums.PaymentStatusCompleted:
	default:
		return nil, invalidTransition(order, "only completed payments can be refunded")
	}

	now := s.now()
	reason := strings.TrimSpace(input.Reason)
	note := notePaymentRefunded
	if reason != "" {
		note += ": " + reason
	}
	details := order.PaymentDetails
	details.Reason = reason
	transactionID := strings.TrimSpace(input.TransactionID)
	if transactionID == "" && order.TransactionID != nil {
		transactionID = *order.TransactionID
	}

	won := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateIf(ctx, order.ID, Guard{
			PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusCompleted},
		}, map[string]any{
			"payment_status":  enums.PaymentStatusRefunded,
			"payment_details": details,
			"status_history":  order.StatusHistory.Append(order.Status, note, now),
			"updated_at":      now,
		})
		if err != nil || !ok {
			return err
		}
		won = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorFor(input.ActorRole, order.SessionID),
			OccurredAt:    now,
			Data: payloads.PaymentRefundedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				PaymentMethod: order.PaymentMethod,
				Status:        order.Status,
				TransactionID: transactionID,
				Amount:        order.Total,
				Reason:        reason,
				RefundedAt:    now,
			},
		})
	})
	if err != nil {
		return nil, storeError(err, "record refund")
	}

	latest, err := s.load(ctx, order.OrderNumber)
	if err != nil {
		return nil, err
	}
	if !won && latest.PaymentStatus != enums.PaymentStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed while recording refund, please retry")
	}
	if won && s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
		s.logg.Info(s.logg.WithField(logCtx, "reason", reason), "payment refunded")
	}
	return NewOrderDTO(latest), nil
}

// Cancel lets the owning session cancel an order that has not started
// processing.
func (s *service) Cancel(ctx context.Context, orderNumber, sessionID string) (*OrderDTO, error) {
	order, err := s.load(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.SessionID != sessionID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	actor := &outbox.ActorRef{SessionID: sessionID, Role: outbox.ActorRoleShopper}
	if err := s.cancel(ctx, order, noteCanceledByOwner, actor); err != nil {
		return nil, err
	}
	return s.dto(ctx, orderNumber)
}

// CancelStale cancels unpaid pending orders created before cutoff and
// returns how many were cancelled. Stock is untouched since it is only
// consumed on payment.
func (s *service) CancelStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	rows, err := s.repo.FindStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, storeError(err, "find stale orders")
	}
	actor := &outbox.ActorRef{Role: outbox.ActorRoleSystem}
	cancelled := 0
	for i := range rows {
		err := s.cancel(ctx, &rows[i], "Order expired without payment", actor)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) || pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *service) cancel(ctx context.Context, order *models.Order, note string, actor *outbox.ActorRef) error {
	if order.Status != enums.OrderStatusPending {
		return invalidTransition(order, "only pending orders can be cancelled")
	}
	if order.PaymentStatus == enums.PaymentStatusCompleted {
		return invalidTransition(order, "paid orders cannot be cancelled")
	}

	now := s.now()
	updates := map[string]any{
		"status":         enums.OrderStatusCancelled,
		"status_history": order.StatusHistory.Append(enums.OrderStatusCancelled, note, now),
		"updated_at":     now,
	}
	if order.PaymentStatus == enums.PaymentStatusPending {
		updates["payment_status"] = enums.PaymentStatusCancelled
	}

	won := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateIf(ctx, order.ID, Guard{
			Statuses:        []enums.OrderStatus{enums.OrderStatusPending},
			PaymentStatuses: []enums.PaymentStatus{order.PaymentStatus},
		}, updates)
		if err != nil || !ok {
			return err
		}
		won = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.OrderCanceledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Reason:      note,
				CanceledAt:  now,
			},
		})
	})
	if err != nil {
		return storeError(err, "cancel order")
	}
	if !won {
		return pkgerrors.New(pkgerrors.CodeConflict, "order changed while cancelling, please retry")
	}
	return nil
}

// UpdateFulfillmentStatus sets any fulfillment status from any other; the
// operator is trusted with the ordering.
func (s *service) UpdateFulfillmentStatus(ctx context.Context, input FulfillmentUpdateInput) (*OrderDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status").
			WithDetails(map[string]any{"field": "status"})
	}
	order, err := s.load(ctx, input.OrderNumber)
	if err != nil {
		return nil, err
	}

	now := s.now()
	note := strings.TrimSpace(input.Note)
	if note == "" {
		note = "Status updated to " + input.Status.String()
	}
	updates := map[string]any{
		"status":         input.Status,
		"status_history": order.StatusHistory.Append(input.Status, note, now),
		"updated_at":     now,
	}
	if input.Tracking != nil {
		updates["tracking"] = types.Tracking{
			Carrier:        strings.TrimSpace(input.Tracking.Carrier),
			TrackingNumber: strings.TrimSpace(input.Tracking.TrackingNumber),
			URL:            strings.TrimSpace(input.Tracking.URL),
		}
	}

	won := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateIf(ctx, order.ID, Guard{
			Statuses: []enums.OrderStatus{order.Status},
		}, updates)
		if err != nil || !ok {
			return err
		}
		won = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStateChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: outbox.ActorRoleAdmin},
			OccurredAt:    now,
			Data: payloads.OrderStateChangedEvent{
				OrderID:        order.ID,
				OrderNumber:    order.OrderNumber,
				PreviousStatus: order.Status,
				Status:         input.Status,
				Note:           note,
				ChangedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, storeError(err, "update order status")
	}
	if !won {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed while updating, please retry")
	}
	return s.dto(ctx, order.OrderNumber)
}

func (s *service) load(ctx context.Context, orderNumber string) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number is required")
	}
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, storeError(err, "load order")
	}
	return order, nil
}

func (s *service) dto(ctx context.Context, orderNumber string) (*OrderDTO, error) {
	order, err := s.load(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	return NewOrderDTO(order), nil
}

func paymentDetails(order *models.Order, input PaymentOutcomeInput, now time.Time) types.PaymentDetails {
	details := input.Details
	if details.Provider == "" {
		details.Provider = order.PaymentMethod.String()
	}
	if details.ProviderRef == "" {
		details.ProviderRef = strings.TrimSpace(input.TransactionID)
	}
	if details.Amount == nil {
		amount := order.Total
		details.Amount = &amount
	}
	if details.Currency == "" {
		details.Currency = "USD"
	}
	if details.CapturedAt == nil {
		captured := now
		details.CapturedAt = &captured
	}
	return details
}

func actorFor(role, sessionID string) *outbox.ActorRef {
	if role == "" {
		role = outbox.ActorRoleGateway
	}
	return &outbox.ActorRef{SessionID: sessionID, Role: role}
}

func normalizeNotes(notes *string) (*string, error) {
	if notes == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil, nil
	}
	if len([]rune(trimmed)) > maxNotesLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes are too long").
			WithDetails(map[string]any{"field": "notes", "max": maxNotesLength})
	}
	return &trimmed, nil
}

func invalidTransition(order *models.Order, msg string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, msg).
		WithDetails(map[string]any{
			"orderNumber":   order.OrderNumber,
			"status":        order.Status,
			"paymentStatus": order.PaymentStatus,
		})
}

// storeError keeps typed errors and classifies everything else.
func storeError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsUnavailable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeStoreUnavailable, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
