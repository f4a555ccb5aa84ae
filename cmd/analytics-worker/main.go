package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/mycoshop-backend/internal/analytics/router"
	"github.com/angelmondragon/mycoshop-backend/internal/analytics/types"
	"github.com/angelmondragon/mycoshop-backend/internal/analytics/worker"
	"github.com/angelmondragon/mycoshop-backend/internal/analytics/writer"
	"github.com/angelmondragon/mycoshop-backend/internal/notifications"
	"github.com/angelmondragon/mycoshop-backend/pkg/bigquery"
	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/mycoshop-backend/pkg/pubsub"
	"github.com/angelmondragon/mycoshop-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Debug(ctx, "no .env file, using process environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: cfg.Service.Kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg,
		pubsub.RequireSubscription(cfg.PubSub.AnalyticsSubscription))
	requireResource(ctx, logg, "pubsub", err)
	defer closeQuietly(ctx, logg, "pubsub", pubsubClient.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("SHOP_PUBSUB_ANALYTICS_SUBSCRIPTION is empty"))
	}

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery", err)
	defer closeQuietly(ctx, logg, "bigquery", bqClient.Close)

	requireResource(ctx, logg, "analytics tables", bqClient.EnsureTables(ctx,
		bigquery.TableSpec{Name: bqClient.OrderEventsTable(), Row: types.OrderEventRow{}, PartitionField: "occurred_at"},
		bigquery.TableSpec{Name: bqClient.OrderSummaryTable(), Row: types.OrderSummaryRow{}, PartitionField: "paid_at"},
	))

	rows, err := writer.New(bqClient, writer.Config{
		OrderEventsTable:  bqClient.OrderEventsTable(),
		OrderSummaryTable: bqClient.OrderSummaryTable(),
	})
	requireResource(ctx, logg, "analytics writer", err)

	ledger, err := idempotency.NewLedger(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "processed-event ledger", err)

	salesRows, err := router.NewRouter(rows, logg, nil)
	requireResource(ctx, logg, "analytics router", err)

	// A nil *SendgridMailer must not become a non-nil Mailer interface.
	var mailer notifications.Mailer
	if sg := notifications.NewSendgridMailer(cfg.Sendgrid); sg != nil {
		mailer = sg
	} else {
		logg.Warn(ctx, "sendgrid not configured, order confirmation mail disabled")
	}
	confirmations, err := notifications.NewConfirmationHandler(mailer, ledger, logg)
	requireResource(ctx, logg, "order confirmation handler", err)

	service, err := worker.NewService(subscription, worker.Chain(salesRows, confirmations), ledger, logg)
	requireResource(ctx, logg, "analytics consumer", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.AnalyticsSubscription,
	})
	logg.Info(runCtx, "analytics worker consuming")

	runErr := service.Run(runCtx)
	if err := rows.Flush(context.WithoutCancel(runCtx)); err != nil {
		logg.Error(runCtx, "flush buffered analytics rows", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(runCtx, "analytics worker stopped unexpectedly", runErr)
		os.Exit(1)
	}
	logg.Info(runCtx, "analytics worker stopped")
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "close "+name, err)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
