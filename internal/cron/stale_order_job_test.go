package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

type fakeStaleCanceller struct {
	batches []int
	errs    []error
	cutoffs []time.Time
}

func (f *fakeStaleCanceller) CancelStale(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	i := len(f.cutoffs)
	f.cutoffs = append(f.cutoffs, cutoff)
	var (
		n   int
		err error
	)
	if i < len(f.batches) {
		n = f.batches[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return n, err
}

func newStaleOrderJob(t *testing.T, orders staleOrderCanceller, batch int) *staleOrderJob {
	t.Helper()
	jobIface, err := NewStaleOrderJob(StaleOrderJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Orders:    orders,
		BatchSize: batch,
	})
	if err != nil {
		t.Fatalf("NewStaleOrderJob: %v", err)
	}
	return jobIface.(*staleOrderJob)
}

func TestStaleOrderJobDrainsFullBatches(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	orders := &fakeStaleCanceller{batches: []int{2, 2, 1}}
	job := newStaleOrderJob(t, orders, 2)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(orders.cutoffs) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(orders.cutoffs))
	}
	if want := now.Add(-72 * time.Hour); !orders.cutoffs[0].Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, orders.cutoffs[0])
	}
}

func TestStaleOrderJobCombinesBatchErrors(t *testing.T) {
	orders := &fakeStaleCanceller{
		batches: []int{1, 0},
		errs:    []error{errors.New("conflicting write"), nil},
	}
	job := newStaleOrderJob(t, orders, 5)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected batch error")
	}
	if len(orders.cutoffs) != 2 {
		t.Fatalf("expected the sweep to continue after a failed batch, got %d calls", len(orders.cutoffs))
	}
}
