package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	Features      FeatureFlagsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KIXIKILA_APP_ENV" required:"true"`
	Port         string `envconfig:"KIXIKILA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KIXIKILA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KIXIKILA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"KIXIKILA_DB_DSN"`
	Driver string `envconfig:"KIXIKILA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KIXIKILA_DB_HOST"`
	LegacyPort     int    `envconfig:"KIXIKILA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KIXIKILA_DB_USER"`
	LegacyPassword string `envconfig:"KIXIKILA_DB_PASSWORD"`
	LegacyName     string `envconfig:"KIXIKILA_DB_NAME"`
	LegacySSLMode  string `envconfig:"KIXIKILA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KIXIKILA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KIXIKILA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KIXIKILA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KIXIKILA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KIXIKILA_REDIS_URL" required:"true"`
	Password     string        `envconfig:"KIXIKILA_REDIS_PASSWORD"`
	DB           int           `envconfig:"KIXIKILA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KIXIKILA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KIXIKILA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KIXIKILA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KIXIKILA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KIXIKILA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"KIXIKILA_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"KIXIKILA_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"KIXIKILA_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"KIXIKILA_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"KIXIKILA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"KIXIKILA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"KIXIKILA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"KIXIKILA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"KIXIKILA_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"KIXIKILA_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"KIXIKILA_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"KIXIKILA_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"KIXIKILA_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"KIXIKILA_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"KIXIKILA_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"KIXIKILA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"KIXIKILA_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"KIXIKILA_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"KIXIKILA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"KIXIKILA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"KIXIKILA_PUBSUB_DOMAIN_TOPIC" default:"kx-domain-events"`
	NotificationSubscription string `envconfig:"KIXIKILA_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription    string `envconfig:"KIXIKILA_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"KIXIKILA_BIGQUERY_DATASET" default:"kixikila"`
	SavingsFactsTable string `envconfig:"KIXIKILA_BIGQUERY_SAVINGS_TABLE" default:"savings_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"KIXIKILA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"KIXIKILA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"KIXIKILA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	PayoutReminderWindow time.Duration `envconfig:"KIXIKILA_CRON_PAYOUT_REMINDER_WINDOW" default:"48h"`
	OutboxRetention      time.Duration `envconfig:"KIXIKILA_CRON_OUTBOX_RETENTION" default:"720h"`
	MetricsPort          string        `envconfig:"KIXIKILA_CRON_METRICS_PORT" default:"9100"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
