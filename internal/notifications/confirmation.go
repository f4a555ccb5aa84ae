package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
)

const confirmationConsumer = "order-confirmation-mail"

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// ConfirmationHandler mails a receipt when an order is paid. Other events are
// accepted and ignored.
type ConfirmationHandler struct {
	mailer      Mailer
	idempotency idempotencyChecker
	logg        *logger.Logger
}

// NewConfirmationHandler builds the handler. A nil mailer disables sending.
func NewConfirmationHandler(mailer Mailer, manager idempotencyChecker, logg *logger.Logger) (*ConfirmationHandler, error) {
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &ConfirmationHandler{mailer: mailer, idempotency: manager, logg: logg}, nil
}

func (h *ConfirmationHandler) Handle(ctx context.Context, envelope types.Envelope) error {
	if envelope.EventType != enums.EventOrderPaid {
		return nil
	}
	if h.mailer == nil {
		h.logg.Debug(ctx, "mail disabled, skipping order confirmation")
		return nil
	}

	var event payloads.OrderPaidEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "undecodable order_paid payload")
		return nil
	}
	logCtx := h.logg.WithOrderNumber(ctx, event.OrderNumber)
	if strings.TrimSpace(event.Email) == "" {
		h.logg.Info(logCtx, "order has no email, skipping confirmation")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		h.logg.Warn(logCtx, "invalid event id")
		return nil
	}
	already, err := h.idempotency.CheckAndMarkProcessed(logCtx, confirmationConsumer, eventID)
	if err != nil {
		return fmt.Errorf("confirmation idempotency: %w", err)
	}
	if already {
		return nil
	}

	msg, err := ConfirmationMessage(event)
	if err != nil {
		_ = h.idempotency.Delete(logCtx, confirmationConsumer, eventID)
		return err
	}
	if err := h.mailer.Send(logCtx, msg); err != nil {
		if delErr := h.idempotency.Delete(logCtx, confirmationConsumer, eventID); delErr != nil {
			h.logg.Warn(logCtx, "failed to release confirmation marker")
		}
		return fmt.Errorf("send order confirmation: %w", err)
	}

	h.logg.Info(logCtx, "order confirmation sent")
	return nil
}

var confirmationHTML = template.Must(template.New("confirmation").Parse(`<p>Hi {{.Name}},</p>
<p>Thanks for your order! We received payment for order <strong>#{{.OrderNumber}}</strong>.</p>
<table>
{{range .Lines}}<tr><td>{{.Quantity}} x {{.Name}} ({{.Size}})</td><td>${{.Total}}</td></tr>
{{end}}</table>
<p>Subtotal: ${{.Subtotal}}<br>Tax: ${{.Tax}}<br>Shipping: ${{.Shipping}}<br><strong>Total: ${{.Total}}</strong></p>
`))

type confirmationLine struct {
	Quantity int
	Name     string
	Size     string
	Total    string
}

type confirmationView struct {
	Name        string
	OrderNumber string
	Lines       []confirmationLine
	Subtotal    string
	Tax         string
	Shipping    string
	Total       string
}

// ConfirmationMessage renders the receipt for a paid order.
func ConfirmationMessage(event payloads.OrderPaidEvent) (Message, error) {
	name := strings.TrimSpace(event.CustomerName)
	if name == "" {
		name = "there"
	}
	view := confirmationView{
		Name:        name,
		OrderNumber: event.OrderNumber,
		Subtotal:    pricing.Format(event.Subtotal),
		Tax:         pricing.Format(event.Tax),
		Shipping:    pricing.Format(event.Shipping),
		Total:       pricing.Format(event.Total),
	}

	var plain strings.Builder
	fmt.Fprintf(&plain, "Hi %s,\n\nThanks for your order! We received payment for order #%s.\n\n", name, event.OrderNumber)
	for _, item := range event.Items {
		line := confirmationLine{
			Quantity: item.Quantity,
			Name:     item.Name,
			Size:     string(item.Size),
			Total:    pricing.Format(item.LineTotal),
		}
		view.Lines = append(view.Lines, line)
		fmt.Fprintf(&plain, "%d x %s (%s)  $%s\n", line.Quantity, line.Name, line.Size, line.Total)
	}
	fmt.Fprintf(&plain, "\nSubtotal: $%s\nTax: $%s\nShipping: $%s\nTotal: $%s\n",
		view.Subtotal, view.Tax, view.Shipping, view.Total)

	var html bytes.Buffer
	if err := confirmationHTML.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("render confirmation: %w", err)
	}

	return Message{
		ToName:    strings.TrimSpace(event.CustomerName),
		ToAddress: strings.TrimSpace(event.Email),
		Subject:   fmt.Sprintf("Your MycoShop order #%s is confirmed", event.OrderNumber),
		PlainText: plain.String(),
		HTML:      html.String(),
	}, nil
}
