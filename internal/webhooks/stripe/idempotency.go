package stripewebhook

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/mycoshop-backend/pkg/redis"
)

// IdempotencyGuard remembers delivered Stripe event ids so redeliveries are
// acknowledged without touching orders twice.
type IdempotencyGuard struct {
	ledger *idempotency.Ledger
	scope  string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	ledger, err := idempotency.NewLedger(store, ttl)
	if err != nil {
		return nil, err
	}
	return &IdempotencyGuard{ledger: ledger, scope: scope}, nil
}

// CheckAndMark reports whether eventID was already seen, marking it when not.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	claimed, err := g.ledger.Claim(ctx, g.scope, eventID)
	return !claimed, err
}

// Delete forgets eventID so Stripe's retry is processed again.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	return g.ledger.Release(ctx, g.scope, eventID)
}
