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

	"github.com/angelmondragon/mycoshop-backend/internal/cart"
	"github.com/angelmondragon/mycoshop-backend/internal/cron"
	"github.com/angelmondragon/mycoshop-backend/internal/orders"
	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/db"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/metrics"
	"github.com/angelmondragon/mycoshop-backend/pkg/migrate"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
	"github.com/angelmondragon/mycoshop-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	engine, err := pricing.NewEngineFromConfig(cfg.Pricing)
	requireResource(ctx, logg, "pricing config", err)

	outboxRepo := outbox.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(dbClient.DB()),
		Carts:     cartRepo,
		Inventory: orders.NewInventoryKeeper(),
		Tx:        dbClient,
		Outbox:    outbox.NewService(outboxRepo, logg),
		Engine:    engine,
		Logger:    logg,
	})
	requireResource(ctx, logg, "order service", err)

	cartJob, err := cron.NewCartExpiryJob(cron.CartExpiryJobParams{
		Logger:     logg,
		Repository: cartRepo,
		TTL:        cfg.Cart.TTL,
	})
	requireResource(ctx, logg, "cart expiry job", err)

	staleJob, err := cron.NewStaleOrderJob(cron.StaleOrderJobParams{
		Logger:     logg,
		Orders:     orderService,
		PendingTTL: cfg.Orders.PendingTTL,
	})
	requireResource(ctx, logg, "stale order job", err)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Eventing.OutboxRetention,
	})
	requireResource(ctx, logg, "outbox retention job", err)

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, "cron-worker:"+env, 0)
	requireResource(ctx, logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(cartJob, staleJob, retentionJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "starting cron worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
