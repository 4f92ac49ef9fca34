package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "KIXIKILA"

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "KIXIKILA_APP_ENV"
	EnvPort     = "KIXIKILA_APP_PORT"
	EnvDBDSN    = "KIXIKILA_DB_DSN"
	EnvDBHost   = "KIXIKILA_DB_HOST"
	EnvDBUser   = "KIXIKILA_DB_USER"
	EnvDBName   = "KIXIKILA_DB_NAME"
	EnvRedisURL = "KIXIKILA_REDIS_URL"

	EnvJWTSecret              = "KIXIKILA_JWT_SECRET"
	EnvJWTIssuer              = "KIXIKILA_JWT_ISSUER"
	EnvJWTExpMins             = "KIXIKILA_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "KIXIKILA_REFRESH_TOKEN_TTL_MINUTES"

	EnvGCPProjectID        = "KIXIKILA_GCP_PROJECT_ID"
	EnvPubSubNotifSub      = "KIXIKILA_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubAnalyticsSub  = "KIXIKILA_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvPubSubDomainTopic   = "KIXIKILA_PUBSUB_DOMAIN_TOPIC"
	EnvBigQueryDataset     = "KIXIKILA_BIGQUERY_DATASET"
	EnvBigQuerySavingsTbl  = "KIXIKILA_BIGQUERY_SAVINGS_TABLE"
	EnvCronReminderWindow  = "KIXIKILA_CRON_PAYOUT_REMINDER_WINDOW"
	EnvCronOutboxRetention = "KIXIKILA_CRON_OUTBOX_RETENTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
