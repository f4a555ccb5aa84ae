package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

const defaultCartTTL = 7 * 24 * time.Hour

type CartExpiryJobParams struct {
	Logger     *logger.Logger
	Repository idleCartPurger
	// TTL is how long a cart may sit untouched before it is deleted.
	TTL time.Duration
}

type idleCartPurger interface {
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewCartExpiryJob deletes carts nobody has touched within the TTL.
func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	return &cartExpiryJob{
		logg: params.Logger,
		repo: params.Repository,
		ttl:  ttl,
		now:  time.Now,
	}, nil
}

type cartExpiryJob struct {
	logg *logger.Logger
	repo idleCartPurger
	ttl  time.Duration
	now  func() time.Time
}

func (j *cartExpiryJob) Name() string { return "cart-expiry" }

func (j *cartExpiryJob) Every() time.Duration { return time.Hour }

func (j *cartExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	deleted, err := j.repo.DeleteIdleBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete idle carts: %w", err)
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":        cutoff,
			"carts_deleted": deleted,
		}), "expired idle carts")
	}
	return nil
}
