package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/mycoshop-backend/internal/outboxrelay"
	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/db"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/metrics"
	"github.com/angelmondragon/mycoshop-backend/pkg/migrate"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox/registry"
	"github.com/angelmondragon/mycoshop-backend/pkg/pubsub"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	requireResource(ctx, logg, "event registry", err)

	var required []pubsub.Option
	for _, topic := range eventRegistry.Topics() {
		required = append(required, pubsub.RequireTopic(topic))
	}
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg, required...)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	relay, err := outboxrelay.New(outboxrelay.Params{
		DB:       dbClient,
		Store:    outbox.NewRepository(dbClient.DB()),
		Registry: eventRegistry,
		Sender:   outboxrelay.NewPubSubSender(pubsubClient),
		Logger:   logg,
		Metrics:  metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		Settings: outboxrelay.SettingsFromConfig(cfg.Outbox),
	})
	requireResource(ctx, logg, "outbox relay", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"topics":      eventRegistry.Topics(),
	})
	logg.Info(runCtx, "starting outbox publisher")

	if err := relay.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "outbox publisher shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
