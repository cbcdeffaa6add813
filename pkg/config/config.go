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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Square       SquareConfig
	Billing      BillingConfig
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
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CRMECO_APP_ENV" required:"true"`
	Port         string `envconfig:"CRMECO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CRMECO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CRMECO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CRMECO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CRMECO_DB_DSN"`
	Driver string `envconfig:"CRMECO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CRMECO_DB_HOST"`
	LegacyPort     int    `envconfig:"CRMECO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CRMECO_DB_USER"`
	LegacyPassword string `envconfig:"CRMECO_DB_PASSWORD"`
	LegacyName     string `envconfig:"CRMECO_DB_NAME"`
	LegacySSLMode  string `envconfig:"CRMECO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CRMECO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CRMECO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CRMECO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CRMECO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CRMECO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CRMECO_REDIS_ADDR"`
	Password     string        `envconfig:"CRMECO_REDIS_PASSWORD"`
	DB           int           `envconfig:"CRMECO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CRMECO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CRMECO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CRMECO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CRMECO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CRMECO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CRMECO_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CRMECO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CRMECO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"CRMECO_PUBSUB_NOTIFICATION_TOPIC" default:"crm-notification-events"`
}

// SquareConfig carries the payment gateway credentials. An empty access token is a
// configuration error surfaced before any schedule is charged.
type SquareConfig struct {
	AccessToken string        `envconfig:"CRMECO_SQUARE_ACCESS_TOKEN"`
	LocationID  string        `envconfig:"CRMECO_SQUARE_LOCATION_ID"`
	Env         string        `envconfig:"CRMECO_SQUARE_ENV" default:"sandbox"`
	Currency    string        `envconfig:"CRMECO_SQUARE_CURRENCY" default:"USD"`
	Timeout     time.Duration `envconfig:"CRMECO_SQUARE_TIMEOUT" default:"30s"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// BillingConfig holds the dunning policy knobs. The defaults are the production policy.
type BillingConfig struct {
	MaxRetries           int           `envconfig:"CRMECO_BILLING_MAX_RETRIES" default:"4"`
	BackoffDays          []int         `envconfig:"CRMECO_BILLING_BACKOFF_DAYS" default:"1,3,5,7"`
	FailureRetryInterval time.Duration `envconfig:"CRMECO_BILLING_FAILURE_RETRY_INTERVAL" default:"72h"`
	FailureMaxRetries    int           `envconfig:"CRMECO_BILLING_FAILURE_MAX_RETRIES" default:"4"`
	DueBatchSize         int           `envconfig:"CRMECO_BILLING_DUE_BATCH_SIZE" default:"100"`
	FailureBatchSize     int           `envconfig:"CRMECO_BILLING_FAILURE_BATCH_SIZE" default:"50"`
	RunInterval          time.Duration `envconfig:"CRMECO_BILLING_RUN_INTERVAL" default:"24h"`
}

func (b BillingConfig) validate() error {
	if b.MaxRetries <= 0 {
		return fmt.Errorf("billing max retries must be positive")
	}
	if len(b.BackoffDays) == 0 {
		return fmt.Errorf("billing backoff table must not be empty")
	}
	for _, days := range b.BackoffDays {
		if days <= 0 {
			return fmt.Errorf("billing backoff entries must be positive, got %d", days)
		}
	}
	if b.FailureRetryInterval <= 0 {
		return fmt.Errorf("billing failure retry interval must be positive")
	}
	return nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CRMECO_AUTO_MIGRATE" default:"false"`
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
