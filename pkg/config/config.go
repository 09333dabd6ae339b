package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Square   SquareConfig
	Gateway  GatewayConfig
	GCP      GCPConfig
	PubSub   PubSubConfig
	Outbox   OutboxConfig
	Cron     CronConfig
	Orders   OrdersConfig
	Shipping ShippingConfig
	Rates    RatesConfig
	Flags    FeatureFlagsConfig
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
	Env          string `envconfig:"GIFTMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"GIFTMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GIFTMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GIFTMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GIFTMARKET_DB_DSN"`
	Driver string `envconfig:"GIFTMARKET_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"GIFTMARKET_DB_HOST"`
	Port     int    `envconfig:"GIFTMARKET_DB_PORT" default:"5432"`
	User     string `envconfig:"GIFTMARKET_DB_USER"`
	Password string `envconfig:"GIFTMARKET_DB_PASSWORD"`
	Name     string `envconfig:"GIFTMARKET_DB_NAME"`
	SSLMode  string `envconfig:"GIFTMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GIFTMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIFTMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIFTMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIFTMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GIFTMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GIFTMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"GIFTMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"GIFTMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GIFTMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GIFTMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GIFTMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GIFTMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GIFTMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GIFTMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GIFTMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GIFTMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type SquareConfig struct {
	AccessToken   string `envconfig:"GIFTMARKET_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"GIFTMARKET_SQUARE_ENV" default:"sandbox"`
	WebhookSecret string `envconfig:"GIFTMARKET_SQUARE_WEBHOOK_SECRET"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// GatewayConfig bounds synchronous calls against the payment gateway.
type GatewayConfig struct {
	VerifyTimeout time.Duration `envconfig:"GIFTMARKET_GATEWAY_VERIFY_TIMEOUT" default:"10s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"GIFTMARKET_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"GIFTMARKET_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrderEventsTopic        string `envconfig:"GIFTMARKET_PUBSUB_ORDER_EVENTS_TOPIC" default:"gm-order-events"`
	OrderEventsSubscription string `envconfig:"GIFTMARKET_PUBSUB_ORDER_EVENTS_SUBSCRIPTION" default:"gm-order-events-notifications"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GIFTMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GIFTMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GIFTMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"GIFTMARKET_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval              time.Duration `envconfig:"GIFTMARKET_CRON_INTERVAL" default:"15m"`
	LockTTL               time.Duration `envconfig:"GIFTMARKET_CRON_LOCK_TTL" default:"20m"`
	GiftOrderPaymentTTL   time.Duration `envconfig:"GIFTMARKET_GIFT_ORDER_PAYMENT_TTL" default:"72h"`
	NotificationRetention time.Duration `envconfig:"GIFTMARKET_NOTIFICATION_RETENTION" default:"2160h"`
}

type OrdersConfig struct {
	GiftCancelWindow time.Duration `envconfig:"GIFTMARKET_GIFT_CANCEL_WINDOW" default:"24h"`
}

type ShippingConfig struct {
	FragileSurchargeBps int `envconfig:"GIFTMARKET_SHIPPING_FRAGILE_SURCHARGE_BPS" default:"1500"`
}

type RatesConfig struct {
	BaseCurrency string        `envconfig:"GIFTMARKET_RATES_BASE_CURRENCY" default:"USD"`
	RefreshTTL   time.Duration `envconfig:"GIFTMARKET_RATES_REFRESH_TTL" default:"1h"`
	ProviderURL  string        `envconfig:"GIFTMARKET_RATES_PROVIDER_URL"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GIFTMARKET_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if parts[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
