package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// Client charges tokenized cards through the Square Payments API.
type Client struct {
	sdk        *sqclient.Client
	locationID string
	logg       *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := cfg.Mode()
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("SHOP_SQUARE_ENV must be sandbox or production, got %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}
	location := strings.TrimSpace(cfg.LocationID)
	if location == "" {
		return nil, errors.New("square location id is required")
	}

	c := &Client{
		sdk:        sqclient.NewClient(sqoption.WithBaseURL(baseURL), sqoption.WithToken(token)),
		locationID: location,
		logg:       logg,
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"square_env": env, "location_id": location}), "square client ready")
	return c, nil
}

// CreatePayment charges params.SourceID. Square deduplicates on the
// idempotency key, which callers derive from the order.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, errors.New("square idempotency key is required")
	}
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"square_op":    "create_payment",
		"reference_id": params.ReferenceID,
		"amount_cents": params.AmountCents,
	})

	resp, err := c.sdk.Payments.Create(ctx, params.request())
	if err != nil {
		err = translateError(err, "create payment")
		c.logg.Error(ctx, "square request failed", err)
		return nil, err
	}
	return c.logged(ctx, resp.GetPayment()), nil
}

// GetPayment reads the current state of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	ctx = c.logg.WithFields(ctx, map[string]any{"square_op": "get_payment", "payment_id": paymentID})

	resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
	if err != nil {
		err = translateError(err, "get payment")
		c.logg.Error(ctx, "square request failed", err)
		return nil, err
	}
	return c.logged(ctx, resp.GetPayment()), nil
}

func (c *Client) logged(ctx context.Context, payment *sq.Payment) *sq.Payment {
	status := ""
	if s := payment.GetStatus(); s != nil {
		status = *s
	}
	c.logg.Info(c.logg.WithField(ctx, "payment_status", status), "square request ok")
	return payment
}
