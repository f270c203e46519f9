package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Payout       PayoutConfig
	Settlement   SettlementConfig
	Invoice      InvoiceConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	Env          string `envconfig:"MERCATO_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"MERCATO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MERCATO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MERCATO_SERVICE_KIND" default:"settlement-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"MERCATO_DB_DSN"`
	Driver string `envconfig:"MERCATO_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MERCATO_DB_HOST"`
	Port     int    `envconfig:"MERCATO_DB_PORT" default:"5432"`
	User     string `envconfig:"MERCATO_DB_USER"`
	Password string `envconfig:"MERCATO_DB_PASSWORD"`
	Name     string `envconfig:"MERCATO_DB_NAME"`
	SSLMode  string `envconfig:"MERCATO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MERCATO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MERCATO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MERCATO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MERCATO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("database DSN or host/user/name parts are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"MERCATO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MERCATO_REDIS_ADDR"`
	Password     string        `envconfig:"MERCATO_REDIS_PASSWORD"`
	DB           int           `envconfig:"MERCATO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MERCATO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MERCATO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MERCATO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MERCATO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MERCATO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type PayoutConfig struct {
	// CadenceWeekday names the day scheduled payouts are dated for.
	CadenceWeekday   string        `envconfig:"MERCATO_PAYOUT_CADENCE_WEEKDAY" default:"Friday"`
	MaxRetries       int           `envconfig:"MERCATO_PAYOUT_MAX_RETRIES" default:"3"`
	WorkerCount      int           `envconfig:"MERCATO_PAYOUT_WORKER_COUNT" default:"4"`
	TransferTimeout  time.Duration `envconfig:"MERCATO_PAYOUT_TRANSFER_TIMEOUT" default:"30s"`
	ReconcileBackoff time.Duration `envconfig:"MERCATO_PAYOUT_RECONCILE_BACKOFF" default:"2s"`
}

// Weekday parses the configured cadence day, defaulting to Friday on bad input.
func (p PayoutConfig) Weekday() time.Weekday {
	switch strings.ToLower(strings.TrimSpace(p.CadenceWeekday)) {
	case "sunday":
		return time.Sunday
	case "monday":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Friday
	}
}

type SettlementConfig struct {
	// GenerationDayOfMonth is the day the previous month is generated on.
	GenerationDayOfMonth int `envconfig:"MERCATO_SETTLEMENT_GENERATION_DAY" default:"1"`
}

type InvoiceConfig struct {
	NumberPrefix string `envconfig:"MERCATO_INVOICE_NUMBER_PREFIX" default:"INV"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MERCATO_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MERCATO_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MERCATO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MERCATO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"MERCATO_PUBSUB_DOMAIN_TOPIC" default:"settlement-domain-events"`
	DomainSubscription string `envconfig:"MERCATO_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"MERCATO_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"MERCATO_OUTBOX_POLL_INTERVAL" default:"500ms"`
	PublishTimeout time.Duration `envconfig:"MERCATO_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
	MaxAttempts    int           `envconfig:"MERCATO_OUTBOX_MAX_ATTEMPTS" default:"10"`
}
