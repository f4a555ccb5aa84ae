package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/mycoshop-backend/api/controllers"
	analyticscontrollers "github.com/angelmondragon/mycoshop-backend/api/controllers/analytics"
	cartcontrollers "github.com/angelmondragon/mycoshop-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/mycoshop-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/mycoshop-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/mycoshop-backend/api/controllers/webhooks"
	"github.com/angelmondragon/mycoshop-backend/api/middleware"
	"github.com/angelmondragon/mycoshop-backend/api/responses"
	"github.com/angelmondragon/mycoshop-backend/internal/analytics"
	"github.com/angelmondragon/mycoshop-backend/internal/cart"
	"github.com/angelmondragon/mycoshop-backend/internal/orders"
	"github.com/angelmondragon/mycoshop-backend/internal/payments"
	products "github.com/angelmondragon/mycoshop-backend/internal/products"
	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/metrics"
)

// RedisStore is the Redis surface the HTTP layer needs: idempotency records,
// rate limit counters and readiness pings.
type RedisStore interface {
	middleware.ReplayStore
	controllers.Pinger
	middleware.RateLimitStore
}

type stripeSigner interface {
	SigningSecret() string
}

// Params bundles everything the router mounts.
type Params struct {
	Config         *config.Config
	Logger         *logger.Logger
	Database       controllers.Pinger
	Redis          RedisStore
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler

	Cart      cart.Service
	Orders    orders.Service
	Products  products.Service
	Payments  payments.Service
	Analytics analytics.Service

	StripeWebhook webhookcontrollers.StripeWebhookService
	StripeSigner  stripeSigner
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Timeout(cfg.App.RequestTimeout),
	)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responses.WriteError(req.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		responses.WriteError(req.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "route not found").
			WithDetails(map[string]any{"method": req.Method}))
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Database, p.Redis, logg))
	})

	metricsHandler := p.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.RateLimitPolicy{
			Name:   "api",
			Window: cfg.RateLimit.Window,
			Limit:  cfg.RateLimit.Limit,
		}, p.Redis, logg))

		r.Get("/health", controllers.StorageHealth(cfg, p.Database))
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeSigner, logg))

		// storefront
		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(cfg.Session, logg))
			r.Use(middleware.Idempotency(p.Redis, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.Get(p.Cart, logg))
				r.Get("/count", cartcontrollers.Count(p.Cart, logg))
				r.Post("/add", cartcontrollers.Add(p.Cart, logg))
				r.Put("/update/{lineId}", cartcontrollers.Update(p.Cart, logg))
				r.Delete("/remove/{lineId}", cartcontrollers.Remove(p.Cart, logg))
				r.Delete("/clear", cartcontrollers.Clear(p.Cart, logg))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", ordercontrollers.Create(p.Orders, logg))
				r.Get("/", ordercontrollers.List(p.Orders, logg))
				r.With(middleware.AdminToken(cfg.Session.AdminToken, logg)).Get("/admin/all", ordercontrollers.ListAll(p.Orders, logg))
				r.Get("/{orderNumber}", ordercontrollers.Detail(p.Orders, logg))
				r.Delete("/{orderNumber}", ordercontrollers.Cancel(p.Orders, logg))
				r.Group(func(r chi.Router) {
					r.Use(middleware.AdminToken(cfg.Session.AdminToken, logg))
					r.Put("/{orderNumber}/status", ordercontrollers.UpdateStatus(p.Orders, logg))
					r.Put("/{orderNumber}/payment", ordercontrollers.UpdatePayment(p.Orders, logg))
				})
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/card/process", paymentcontrollers.ProcessCard(p.Payments, logg))
				r.Post("/{provider}/create", paymentcontrollers.Create(p.Payments, logg))
				r.Post("/{provider}/execute", paymentcontrollers.Execute(p.Payments, logg))
				r.Get("/{provider}/status/{paymentId}", paymentcontrollers.Status(p.Payments, logg))
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(p.Products, logg))
			r.Get("/categories", controllers.ListCategories(p.Products, logg))
			r.Get("/{id}", controllers.GetProduct(p.Products, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.AdminToken(cfg.Session.AdminToken, logg))
				r.Post("/", controllers.CreateProduct(p.Products, logg))
				r.Put("/{id}", controllers.UpdateProduct(p.Products, logg))
				r.Delete("/{id}", controllers.DeleteProduct(p.Products, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminToken(cfg.Session.AdminToken, logg))
			r.Get("/analytics/sales", analyticscontrollers.Sales(p.Analytics, logg))
		})
	})

	return r
}
