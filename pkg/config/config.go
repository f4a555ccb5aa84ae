package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Config is the full SHOP_* environment. Every binary loads the same struct
// and reads only the sections it needs.
type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Session      SessionConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Pricing      PricingConfig
	Cart         CartConfig
	Orders       OrdersConfig
	Eventing     EventingConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Square       SquareConfig
	PayPal       PayPalConfig
	Sendgrid     SendgridConfig
}

// Load reads the environment and reports every invalid setting at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.resolveDSN(),
		cfg.Redis.validate(),
		cfg.Pricing.validate(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string        `envconfig:"SHOP_APP_ENV" required:"true"`
	Port           string        `envconfig:"SHOP_APP_PORT" required:"true"`
	LogLevel       string        `envconfig:"SHOP_LOG_LEVEL" default:"info"`
	LogWarnStack   bool          `envconfig:"SHOP_LOG_WARN_STACK" default:"false"`
	RequestTimeout time.Duration `envconfig:"SHOP_APP_REQUEST_TIMEOUT" default:"15s"`
	CORSOrigins    []string      `envconfig:"SHOP_APP_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool  { return strings.EqualFold(a.Env, AppEnvDev) }
func (a AppConfig) IsProd() bool { return strings.EqualFold(a.Env, AppEnvProd) }

// ServiceConfig names the running binary; each main overrides Kind.
type ServiceConfig struct {
	Kind string `envconfig:"SHOP_SERVICE_KIND" default:"api"`
}

// DBConfig accepts either a full DSN or the discrete SHOP_DB_* parts.
type DBConfig struct {
	DSN    string `envconfig:"SHOP_DB_DSN"`
	Driver string `envconfig:"SHOP_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SHOP_DB_HOST"`
	Port     int    `envconfig:"SHOP_DB_PORT" default:"5432"`
	User     string `envconfig:"SHOP_DB_USER"`
	Password string `envconfig:"SHOP_DB_PASSWORD"`
	Name     string `envconfig:"SHOP_DB_NAME"`
	SSLMode  string `envconfig:"SHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%s is unset and so are %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}

// RedisConfig takes SHOP_REDIS_URL or SHOP_REDIS_ADDR; the URL wins when both
// are set.
type RedisConfig struct {
	URL          string        `envconfig:"SHOP_REDIS_URL"`
	Address      string        `envconfig:"SHOP_REDIS_ADDR"`
	Password     string        `envconfig:"SHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) validate() error {
	if strings.TrimSpace(r.URL) == "" && strings.TrimSpace(r.Address) == "" {
		return fmt.Errorf("%s or %s must be set", EnvRedisURL, EnvRedisAddr)
	}
	return nil
}

// SessionConfig controls the signed session cookie that stands in for shopper identity.
type SessionConfig struct {
	Secret       string        `envconfig:"SHOP_SESSION_SECRET" required:"true"`
	Issuer       string        `envconfig:"SHOP_SESSION_ISSUER" default:"mycoshop"`
	CookieName   string        `envconfig:"SHOP_SESSION_COOKIE_NAME" default:"shop_session"`
	TTL          time.Duration `envconfig:"SHOP_SESSION_TTL" default:"168h"`
	SecureCookie bool          `envconfig:"SHOP_SESSION_SECURE_COOKIE" default:"false"`
	// AdminToken guards operator routes when set. Empty leaves them open.
	AdminToken string `envconfig:"SHOP_ADMIN_TOKEN"`
}

type RateLimitConfig struct {
	Window time.Duration `envconfig:"SHOP_RATE_LIMIT_WINDOW" default:"15m"`
	Limit  int           `envconfig:"SHOP_RATE_LIMIT_LIMIT" default:"100"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SHOP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SHOP_AUTO_MIGRATE" default:"false"`
}

// PricingConfig holds decimal strings so money never passes through float64.
type PricingConfig struct {
	TaxRate               string `envconfig:"SHOP_PRICING_TAX_RATE" default:"0.08"`
	FreeShippingThreshold string `envconfig:"SHOP_PRICING_FREE_SHIPPING_THRESHOLD" default:"50.00"`
	FlatShipping          string `envconfig:"SHOP_PRICING_FLAT_SHIPPING" default:"9.99"`
}

func (p PricingConfig) validate() error {
	var err error
	check := func(env, raw string) {
		d, parseErr := decimal.NewFromString(strings.TrimSpace(raw))
		switch {
		case parseErr != nil:
			err = multierr.Append(err, fmt.Errorf("%s: %w", env, parseErr))
		case d.IsNegative():
			err = multierr.Append(err, fmt.Errorf("%s must not be negative", env))
		}
	}
	check(EnvPricingTaxRate, p.TaxRate)
	check(EnvPricingFreeShipping, p.FreeShippingThreshold)
	check(EnvPricingFlatShipping, p.FlatShipping)
	return err
}

type CartConfig struct {
	TTL time.Duration `envconfig:"SHOP_CART_TTL" default:"168h"`
}

type OrdersConfig struct {
	PendingTTL time.Duration `envconfig:"SHOP_ORDERS_PENDING_TTL" default:"72h"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"SHOP_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	OutboxRetention      time.Duration `envconfig:"SHOP_EVENTING_OUTBOX_RETENTION" default:"720h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SHOP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SHOP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SHOP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic           string `envconfig:"SHOP_PUBSUB_ORDERS_TOPIC" default:"shop-order-events"`
	AnalyticsSubscription string `envconfig:"SHOP_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"shop-order-events-analytics"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"SHOP_BIGQUERY_DATASET" default:"mycoshop"`
	OrderEventsTable  string `envconfig:"SHOP_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
	OrderSummaryTable string `envconfig:"SHOP_BIGQUERY_ORDER_SUMMARY_TABLE" default:"order_summaries"`
}

type StripeConfig struct {
	APIKey   string `envconfig:"SHOP_STRIPE_API_KEY"`
	Secret   string `envconfig:"SHOP_STRIPE_SECRET"`
	Env      string `envconfig:"SHOP_STRIPE_ENV" default:"test"`
	Currency string `envconfig:"SHOP_STRIPE_CURRENCY" default:"usd"`
}

// Mode is the lower-cased key mode, "test" unless set.
func (s StripeConfig) Mode() string { return normalizedMode(s.Env, "test") }

type SquareConfig struct {
	AccessToken string `envconfig:"SHOP_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"SHOP_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"SHOP_SQUARE_ENV" default:"sandbox"`
}

// Mode is the lower-cased Square environment, "sandbox" unless set.
func (s SquareConfig) Mode() string { return normalizedMode(s.Env, "sandbox") }

// PayPalConfig only toggles the in-process sandbox; live PayPal is not wired.
type PayPalConfig struct {
	Sandbox   bool   `envconfig:"SHOP_PAYPAL_SANDBOX" default:"false"`
	ReturnURL string `envconfig:"SHOP_PAYPAL_RETURN_URL" default:"http://localhost:3000/checkout/success"`
	CancelURL string `envconfig:"SHOP_PAYPAL_CANCEL_URL" default:"http://localhost:3000/checkout/cancel"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"SHOP_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"SHOP_SENDGRID_FROM_EMAIL" default:"orders@mycoshop.example"`
	FromName    string `envconfig:"SHOP_SENDGRID_FROM_NAME" default:"MycoShop"`
}

func normalizedMode(raw, fallback string) string {
	if mode := strings.ToLower(strings.TrimSpace(raw)); mode != "" {
		return mode
	}
	return fallback
}
