package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedOutboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository publishedOutboxPruner
	// Retention is the age at which published rows are pruned. Unpublished
	// and dead-lettered rows are never touched.
	Retention time.Duration
}

// NewOutboxRetentionJob prunes published outbox rows once a day.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		pruner:    params.Repository,
		retention: params.Retention,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	pruner    publishedOutboxPruner
	retention time.Duration
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return 24 * time.Hour }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var pruned int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		pruned, err = j.pruner.DeletePublishedBefore(ctx, tx, cutoff)
		return err
	}); err != nil {
		return fmt.Errorf("prune published outbox rows: %w", err)
	}

	if pruned > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":      cutoff,
			"rows_pruned": pruned,
		}), "pruned published outbox rows")
	}
	return nil
}
