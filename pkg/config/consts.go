package config

// EnvPrefix scopes all environment variables read by Load.
const EnvPrefix = "CRMECO"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names shared between Load and tests.
const (
	EnvAppEnv   = "CRMECO_APP_ENV"
	EnvPort     = "CRMECO_APP_PORT"
	EnvDBDSN    = "CRMECO_DB_DSN"
	EnvDBHost   = "CRMECO_DB_HOST"
	EnvDBUser   = "CRMECO_DB_USER"
	EnvDBName   = "CRMECO_DB_NAME"
	EnvRedisURL = "CRMECO_REDIS_URL"

	EnvSquareAccessToken = "CRMECO_SQUARE_ACCESS_TOKEN"
	EnvSquareLocationID  = "CRMECO_SQUARE_LOCATION_ID"

	EnvGCPProjectID          = "CRMECO_GCP_PROJECT_ID"
	EnvPubSubNotificationTop = "CRMECO_PUBSUB_NOTIFICATION_TOPIC"

	EnvBillingMaxRetries  = "CRMECO_BILLING_MAX_RETRIES"
	EnvBillingBackoffDays = "CRMECO_BILLING_BACKOFF_DAYS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
