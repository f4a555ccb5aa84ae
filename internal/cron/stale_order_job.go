package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

const (
	defaultPendingTTL     = 72 * time.Hour
	defaultStaleBatchSize = 100
	maxStaleBatches       = 20
)

// StaleOrderJobParams configure the job that cancels abandoned checkouts.
type StaleOrderJobParams struct {
	Logger     *logger.Logger
	Orders     staleOrderCanceller
	PendingTTL time.Duration
	BatchSize  int
}

type staleOrderCanceller interface {
	CancelStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewStaleOrderJob builds the job cancelling orders whose payment never
// completed within the pending TTL. Stock is untouched since it is only
// taken when payment completes.
func NewStaleOrderJob(params StaleOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatchSize
	}
	return &staleOrderJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type staleOrderJob struct {
	logg   *logger.Logger
	orders staleOrderCanceller
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *staleOrderJob) Name() string { return "stale-order-cancel" }

func (j *staleOrderJob) Every() time.Duration { return time.Hour }

// Run drains stale orders batch by batch. A failing batch is recorded and
// the next one still runs.
func (j *staleOrderJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	var (
		errs     error
		canceled int
	)
	for i := 0; i < maxStaleBatches; i++ {
		n, err := j.orders.CancelStale(ctx, cutoff, j.batch)
		canceled += n
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("batch %d: %w", i+1, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if n < j.batch {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"orders_canceled": canceled,
	}), "stale order sweep complete")
	return errs
}
