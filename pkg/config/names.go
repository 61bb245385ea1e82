package config

// EnvPrefix is empty because every struct tag carries its fully qualified
// WEBHOOKS_ name already.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside struct tags (error messages,
// tests).
const (
	EnvAppEnv   = "WEBHOOKS_APP_ENV"
	EnvPort     = "WEBHOOKS_APP_PORT"
	EnvLogLevel = "WEBHOOKS_LOG_LEVEL"

	EnvDBDSN  = "WEBHOOKS_DB_DSN"
	EnvDBHost = "WEBHOOKS_DB_HOST"
	EnvDBUser = "WEBHOOKS_DB_USER"
	EnvDBName = "WEBHOOKS_DB_NAME"

	EnvRedisURL = "WEBHOOKS_REDIS_URL"

	EnvCronSecret = "WEBHOOKS_CRON_SECRET"
	EnvJWTSecret  = "WEBHOOKS_JWT_SECRET"
	EnvSecretsKey = "WEBHOOKS_SECRETS_KEY"

	EnvGCPProjectID    = "WEBHOOKS_GCP_PROJECT_ID"
	EnvPubSubTopic     = "WEBHOOKS_PUBSUB_EVENTS_TOPIC"
	EnvPubSubSub       = "WEBHOOKS_PUBSUB_EVENTS_SUBSCRIPTION"
	EnvBigQueryEnabled = "WEBHOOKS_BIGQUERY_ENABLED"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
