package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// markerStore is the slice of the Redis client the ledger needs.
type markerStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Ledger remembers which consumer already handled which id. Markers are
// Redis keys written with SETNX and expire after ttl, giving each consumer
// at-least-once delivery with duplicate suppression inside the window.
type Ledger struct {
	store markerStore
	ttl   time.Duration
}

func NewLedger(store markerStore, ttl time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("marker store is required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("marker ttl %s is negative", ttl)
	}
	return &Ledger{store: store, ttl: ttl}, nil
}

// Claim writes the marker for (consumer, id). It returns false when another
// delivery already holds it.
func (l *Ledger) Claim(ctx context.Context, consumer, id string) (bool, error) {
	key, err := l.key(consumer, id)
	if err != nil {
		return false, err
	}
	claimed, err := l.store.SetNX(ctx, key, time.Now().UTC().Unix(), l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return claimed, nil
}

// Release drops the marker so the next delivery is processed again.
func (l *Ledger) Release(ctx context.Context, consumer, id string) error {
	key, err := l.key(consumer, id)
	if err != nil {
		return err
	}
	return l.store.Del(ctx, key)
}

// CheckAndMarkProcessed is Claim for outbox envelopes, reporting true for
// duplicates.
func (l *Ledger) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, errors.New("event id is required")
	}
	claimed, err := l.Claim(ctx, consumer, eventID.String())
	return !claimed, err
}

// Delete is Release for outbox envelopes.
func (l *Ledger) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	return l.Release(ctx, consumer, eventID.String())
}

func (l *Ledger) key(consumer, id string) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case id == "":
		return "", errors.New("id is required")
	}
	return l.store.IdempotencyKey("processed:"+consumer, id), nil
}
