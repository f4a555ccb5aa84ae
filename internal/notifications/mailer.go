package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

// Message is a single transactional email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	PlainText string
	HTML      string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridMailer sends mail through the SendGrid v3 API.
type SendgridMailer struct {
	client   sendgridClient
	fromName string
	from     string
}

// NewSendgridMailer returns nil when no API key is configured so callers can
// treat mail as disabled.
func NewSendgridMailer(cfg config.SendgridConfig) *SendgridMailer {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil
	}
	return &SendgridMailer{
		client:   sendgrid.NewSendClient(key),
		fromName: cfg.FromName,
		from:     cfg.DefaultFrom,
	}
}

func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToAddress) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient address required")
	}
	email := mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.from),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.ToAddress),
		msg.PlainText,
		msg.HTML,
	)
	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sendgrid request failed")
	}
	if resp.StatusCode >= 300 {
		return pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("sendgrid rejected message with status %d", resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": resp.Body})
	}
	return nil
}
