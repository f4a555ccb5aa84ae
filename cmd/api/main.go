package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/mycoshop-backend/api/routes"
	"github.com/angelmondragon/mycoshop-backend/internal/analytics"
	"github.com/angelmondragon/mycoshop-backend/internal/cart"
	"github.com/angelmondragon/mycoshop-backend/internal/orders"
	"github.com/angelmondragon/mycoshop-backend/internal/payments"
	products "github.com/angelmondragon/mycoshop-backend/internal/products"
	stripewebhook "github.com/angelmondragon/mycoshop-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/mycoshop-backend/pkg/bigquery"
	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/db"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/metrics"
	"github.com/angelmondragon/mycoshop-backend/pkg/migrate"
	"github.com/angelmondragon/mycoshop-backend/pkg/outbox"
	"github.com/angelmondragon/mycoshop-backend/pkg/pricing"
	"github.com/angelmondragon/mycoshop-backend/pkg/redis"
	"github.com/angelmondragon/mycoshop-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/mycoshop-backend/pkg/stripe"
)

const (
	serviceName     = "api"
	shutdownTimeout = 20 * time.Second
	// Stripe retries a delivery for up to three days; keep markers longer.
	stripeEventTTL   = 7 * 24 * time.Hour
	stripeEventScope = "stripe-webhook"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer closeQuietly(ctx, logg, "database", dbClient.Close)
	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	engine, err := pricing.NewEngineFromConfig(cfg.Pricing)
	requireResource(ctx, logg, "pricing config", err)

	catalog := products.NewRepository(dbClient.DB())
	productService, err := products.NewService(catalog, products.NewFallbackCatalog(), logg)
	requireResource(ctx, logg, "product service", err)

	carts := cart.NewRepository(dbClient.DB())
	cartService, err := cart.NewService(carts, catalog, engine, logg)
	requireResource(ctx, logg, "cart service", err)

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(dbClient.DB()),
		Carts:     carts,
		Inventory: orders.NewInventoryKeeper(),
		Tx:        dbClient,
		Outbox:    outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Engine:    engine,
		Logger:    logg,
	})
	requireResource(ctx, logg, "order service", err)

	stripeClient, gateways := paymentGateways(ctx, cfg, logg)
	paymentService, err := payments.NewService(orderService, logg, gateways...)
	requireResource(ctx, logg, "payment service", err)

	analyticsService, closeAnalytics := salesAnalytics(ctx, cfg, logg)
	defer closeAnalytics()

	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, stripeEventTTL, stripeEventScope)
	requireResource(ctx, logg, "stripe webhook guard", err)
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders: orderService,
		Guard:  guard,
		Logger: logg,
	})
	requireResource(ctx, logg, "stripe webhook service", err)

	params := routes.Params{
		Config:        cfg,
		Logger:        logg,
		Database:      dbClient,
		Redis:         redisClient,
		HTTPMetrics:   metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Cart:          cartService,
		Orders:        orderService,
		Products:      productService,
		Payments:      paymentService,
		Analytics:     analyticsService,
		StripeWebhook: webhookService,
	}
	// A nil *Client in the interface field would defeat the router's nil check.
	if stripeClient != nil {
		params.StripeSigner = stripeClient
	}

	port := cfg.App.Port
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(routes.NewRouter(params), "mycoshop-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        server.Addr,
		"serviceKind": cfg.Service.Kind,
	})
	if err := serve(runCtx, logg, server); err != nil {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// paymentGateways builds a breaker-wrapped gateway for every configured
// provider. Unconfigured providers are skipped with a warning.
func paymentGateways(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*pkgstripe.Client, []payments.Gateway) {
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	var gateways []payments.Gateway
	add := func(g payments.Gateway) {
		gateways = append(gateways, payments.WithBreaker(g, payments.BreakerSettings{}, paymentMetrics, logg))
	}

	var stripeClient *pkgstripe.Client
	if cfg.Stripe.APIKey == "" {
		logg.Warn(ctx, "stripe not configured, stripe payments and webhooks disabled")
	} else {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		requireResource(ctx, logg, "stripe client", err)
		gateway, err := payments.NewStripeGateway(payments.NewPaymentIntentAPI(client), client.Currency())
		requireResource(ctx, logg, "stripe gateway", err)
		add(gateway)
		if client.Live() && cfg.App.IsDev() {
			logg.Warn(ctx, "stripe live key in a dev environment, real cards will be charged")
		}
		stripeClient = client
	}

	if cfg.Square.AccessToken == "" {
		logg.Warn(ctx, "square not configured, card payments disabled")
	} else {
		client, err := square.NewClient(ctx, cfg.Square, logg)
		requireResource(ctx, logg, "square client", err)
		gateway, err := payments.NewSquareGateway(client, "USD")
		requireResource(ctx, logg, "square gateway", err)
		add(gateway)
	}

	if cfg.PayPal.Sandbox {
		add(payments.NewPayPalSandbox(cfg.PayPal))
		logg.Warn(ctx, "paypal sandbox enabled")
	}
	return stripeClient, gateways
}

// salesAnalytics is nil without a GCP project; the analytics routes then
// answer 503.
func salesAnalytics(ctx context.Context, cfg *config.Config, logg *logger.Logger) (analytics.Service, func()) {
	if cfg.GCP.ProjectID == "" {
		logg.Warn(ctx, "gcp project not set, sales analytics disabled")
		return nil, func() {}
	}
	bq, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	svc, err := analytics.NewService(bq, cfg.GCP.ProjectID, cfg.BigQuery.Dataset, bq.OrderEventsTable(), bq.OrderSummaryTable())
	requireResource(ctx, logg, "analytics service", err)
	return svc, func() { closeQuietly(ctx, logg, "bigquery", bq.Close) }
}

func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logg.Info(ctx, "api server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "graceful shutdown failed", err)
	}
	return nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, resource string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+resource, err)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
