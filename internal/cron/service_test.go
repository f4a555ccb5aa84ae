package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/metrics"
)

type memoryLock struct {
	heldElsewhere bool
	held          bool
	releases      int
}

func (m *memoryLock) Acquire(context.Context) (bool, error) {
	if m.heldElsewhere || m.held {
		return false, nil
	}
	m.held = true
	return true, nil
}

func (m *memoryLock) Release(context.Context) error {
	m.held = false
	m.releases++
	return nil
}

type countingJob struct {
	name  string
	err   error
	every time.Duration
	runs  int
	run   func(context.Context) error
}

func (j *countingJob) Name() string         { return j.name }
func (j *countingJob) Every() time.Duration { return j.every }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs++
	if j.run != nil {
		return j.run(ctx)
	}
	return j.err
}

func cronService(t *testing.T, lock Lock, m *metrics.CronJobMetrics, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  m,
	})
	require.NoError(t, err)
	return svc
}

func TestRunCycleRunsEveryDueJobDespiteFailures(t *testing.T) {
	ok := &countingJob{name: "expire-carts"}
	failing := &countingJob{name: "cancel-stale-orders", err: errors.New("db timeout")}
	promReg := prometheus.NewRegistry()
	lock := &memoryLock{}

	err := cronService(t, lock, metrics.NewCronJobMetrics(promReg), ok, failing).runCycle(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel-stale-orders: db timeout")
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)

	families, err := promReg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRunCycleSkipsWhenLockHeldElsewhere(t *testing.T) {
	job := &countingJob{name: "expire-carts"}

	require.NoError(t, cronService(t, &memoryLock{heldElsewhere: true}, nil, job).runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunCycleHonoursJobCadence(t *testing.T) {
	job := &countingJob{name: "purge-outbox", every: time.Hour}
	svc := cronService(t, &memoryLock{}, nil, job)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.runCycle(context.Background()))
		now = now.Add(20 * time.Minute)
	}
	assert.Equal(t, 1, job.runs, "one run inside the hour")

	now = now.Add(time.Hour)
	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 2, job.runs)
}

func TestRunCycleRecoversPanickingJob(t *testing.T) {
	panicking := &countingJob{name: "broken", run: func(context.Context) error { panic("nil map") }}
	after := &countingJob{name: "expire-carts"}

	err := cronService(t, &memoryLock{}, nil, panicking, after).runCycle(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: panic: nil map")
	assert.Equal(t, 1, after.runs)
}

func TestRunJobAppliesTimeout(t *testing.T) {
	var deadline time.Time
	job := &countingJob{name: "slow", run: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}
	svc := cronService(t, &memoryLock{}, nil, job)

	require.NoError(t, svc.runJob(context.Background(), job))
	assert.WithinDuration(t, time.Now().Add(defaultJobTimeout), deadline, time.Minute)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "expire-carts"}
	svc := cronService(t, &memoryLock{}, nil, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
	assert.Equal(t, 1, job.runs, "first cycle runs before waiting")
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &memoryLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{Output: io.Discard})})
	assert.Error(t, err)
}
