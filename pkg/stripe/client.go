package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

// keyPrefixes lists the secret and restricted key prefixes valid per mode.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client holds the Stripe credentials for PaymentIntents and webhook
// verification. The package-level stripe.Key is set once here.
type Client struct {
	mode          string
	signingSecret string
	currency      string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Mode()
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case apiKey == "":
		return nil, errors.New("stripe api key is required")
	case secret == "":
		return nil, errors.New("stripe webhook secret is required")
	}
	if err := checkKeyMode(mode, apiKey); err != nil {
		return nil, err
	}

	stripe.Key = apiKey
	client := &Client{mode: mode, signingSecret: secret, currency: currency(cfg.Currency)}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"stripe_mode": mode, "currency": client.currency}), "stripe configured")
	}
	return client, nil
}

// checkKeyMode refuses live keys in test mode and the reverse.
func checkKeyMode(mode, key string) error {
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return fmt.Errorf("SHOP_STRIPE_ENV must be test or live, got %q", mode)
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return nil
		}
	}
	return fmt.Errorf("stripe %s mode needs a key starting with %s", mode, strings.Join(prefixes, " or "))
}

func currency(raw string) string {
	if c := strings.ToLower(strings.TrimSpace(raw)); c != "" {
		return c
	}
	return "usd"
}

// SigningSecret is the whsec_ secret used to verify webhook payloads.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// Currency is the lowercase ISO code PaymentIntents are created in.
func (c *Client) Currency() string {
	if c == nil {
		return "usd"
	}
	return c.currency
}

// Live reports whether real charges are made.
func (c *Client) Live() bool {
	return c != nil && c.mode == "live"
}
