package config

const (
	EnvPrefix = "SHOP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv        = "SHOP_APP_ENV"
	EnvPort          = "SHOP_APP_PORT"
	EnvDBDSN         = "SHOP_DB_DSN"
	EnvDBHost        = "SHOP_DB_HOST"
	EnvDBUser        = "SHOP_DB_USER"
	EnvDBName        = "SHOP_DB_NAME"
	EnvDBPassword    = "SHOP_DB_PASSWORD"
	EnvRedisURL      = "SHOP_REDIS_URL"
	EnvRedisAddr     = "SHOP_REDIS_ADDR"
	EnvSessionSecret = "SHOP_SESSION_SECRET"
	EnvSessionTTL    = "SHOP_SESSION_TTL"
	EnvGCPProjectID  = "SHOP_GCP_PROJECT_ID"

	EnvPricingTaxRate      = "SHOP_PRICING_TAX_RATE"
	EnvPricingFreeShipping = "SHOP_PRICING_FREE_SHIPPING_THRESHOLD"
	EnvPricingFlatShipping = "SHOP_PRICING_FLAT_SHIPPING"

	EnvPubSubOrdersTopic  = "SHOP_PUBSUB_ORDERS_TOPIC"
	EnvPubSubAnalyticsSub = "SHOP_PUBSUB_ANALYTICS_SUBSCRIPTION"
)
