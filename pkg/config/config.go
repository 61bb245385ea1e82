package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Cron         CronConfig
	JWT          JWTConfig
	Secrets      SecretsConfig
	Retry        RetryConfig
	Dispatch     DispatchConfig
	Worker       WorkerConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"WEBHOOKS_APP_ENV" required:"true"`
	Port         string `envconfig:"WEBHOOKS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WEBHOOKS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WEBHOOKS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev) || strings.EqualFold(a.Env, "development")
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN    string `envconfig:"WEBHOOKS_DB_DSN"`
	Driver string `envconfig:"WEBHOOKS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WEBHOOKS_DB_HOST"`
	LegacyPort     int    `envconfig:"WEBHOOKS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WEBHOOKS_DB_USER"`
	LegacyPassword string `envconfig:"WEBHOOKS_DB_PASSWORD"`
	LegacyName     string `envconfig:"WEBHOOKS_DB_NAME"`
	LegacySSLMode  string `envconfig:"WEBHOOKS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WEBHOOKS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WEBHOOKS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WEBHOOKS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WEBHOOKS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WEBHOOKS_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"WEBHOOKS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WEBHOOKS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WEBHOOKS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WEBHOOKS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WEBHOOKS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CronConfig carries the shared secret expected by the retry trigger endpoint.
type CronConfig struct {
	Secret string `envconfig:"WEBHOOKS_CRON_SECRET" required:"true"`
}

type JWTConfig struct {
	Secret string `envconfig:"WEBHOOKS_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"WEBHOOKS_JWT_ISSUER" default:"opsledger"`
}

// SecretsConfig holds the key used to seal subscription signing secrets at
// rest. Base64-encoded 32 bytes.
type SecretsConfig struct {
	Key string `envconfig:"WEBHOOKS_SECRETS_KEY" required:"true"`
}

// RetryConfig parameterizes the backoff policy. Values are defaults, not
// contracts; operators tune them per environment.
type RetryConfig struct {
	MaxAttempts    int           `envconfig:"WEBHOOKS_RETRY_MAX_ATTEMPTS" default:"8"`
	BaseDelay      time.Duration `envconfig:"WEBHOOKS_RETRY_BASE_DELAY" default:"30s"`
	MaxDelay       time.Duration `envconfig:"WEBHOOKS_RETRY_MAX_DELAY" default:"24h"`
	JitterFraction float64       `envconfig:"WEBHOOKS_RETRY_JITTER_FRACTION" default:"0.2"`
}

type DispatchConfig struct {
	Timeout     time.Duration `envconfig:"WEBHOOKS_DISPATCH_TIMEOUT" default:"10s"`
	Concurrency int           `envconfig:"WEBHOOKS_DISPATCH_CONCURRENCY" default:"10"`
	BatchSize   int           `envconfig:"WEBHOOKS_DISPATCH_BATCH_SIZE" default:"50"`
}

type WorkerConfig struct {
	Interval        time.Duration `envconfig:"WEBHOOKS_WORKER_INTERVAL" default:"1m"`
	LockTTL         time.Duration `envconfig:"WEBHOOKS_WORKER_LOCK_TTL" default:"5m"`
	InFlightTimeout time.Duration `envconfig:"WEBHOOKS_WORKER_INFLIGHT_TIMEOUT" default:"15m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"WEBHOOKS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"WEBHOOKS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"WEBHOOKS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EventsTopic        string `envconfig:"WEBHOOKS_PUBSUB_EVENTS_TOPIC" required:"true"`
	EventsSubscription string `envconfig:"WEBHOOKS_PUBSUB_EVENTS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Enabled             bool          `envconfig:"WEBHOOKS_BIGQUERY_ENABLED" default:"false"`
	Dataset             string        `envconfig:"WEBHOOKS_BIGQUERY_DATASET" default:"opsledger_webhooks"`
	DeliveryEventsTable string        `envconfig:"WEBHOOKS_BIGQUERY_DELIVERY_TABLE" default:"delivery_events"`
	FlushInterval       time.Duration `envconfig:"WEBHOOKS_BIGQUERY_FLUSH_INTERVAL" default:"30s"`
	BatchSize           int           `envconfig:"WEBHOOKS_BIGQUERY_BATCH_SIZE" default:"200"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"WEBHOOKS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"WEBHOOKS_AUTO_MIGRATE" default:"false"`
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
