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
	Stripe        StripeConfig
	Payments      PaymentsConfig
	Outbox        OutboxConfig
	PubSub        PubSubConfig
	Sendgrid      SendgridConfig
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
	Env          string `envconfig:"CINEMA_APP_ENV" required:"true"`
	Port         string `envconfig:"CINEMA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CINEMA_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"CINEMA_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"CINEMA_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"CINEMA_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CINEMA_DB_DSN"`
	Driver string `envconfig:"CINEMA_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CINEMA_DB_HOST"`
	Port     int    `envconfig:"CINEMA_DB_PORT" default:"5432"`
	User     string `envconfig:"CINEMA_DB_USER"`
	Password string `envconfig:"CINEMA_DB_PASSWORD"`
	Name     string `envconfig:"CINEMA_DB_NAME"`
	SSLMode  string `envconfig:"CINEMA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CINEMA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CINEMA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CINEMA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CINEMA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CINEMA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CINEMA_REDIS_ADDR"`
	Password     string        `envconfig:"CINEMA_REDIS_PASSWORD"`
	DB           int           `envconfig:"CINEMA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CINEMA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CINEMA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CINEMA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CINEMA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CINEMA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"CINEMA_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"CINEMA_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"CINEMA_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"CINEMA_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"CINEMA_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"CINEMA_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"CINEMA_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"CINEMA_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"CINEMA_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"CINEMA_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"CINEMA_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"CINEMA_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"CINEMA_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"CINEMA_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"CINEMA_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"CINEMA_STRIPE_API_KEY"`
	Secret     string `envconfig:"CINEMA_STRIPE_SECRET"`
	Env        string `envconfig:"CINEMA_STRIPE_ENV" default:"test"`
	SuccessURL string `envconfig:"CINEMA_STRIPE_SUCCESS_URL"`
	CancelURL  string `envconfig:"CINEMA_STRIPE_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PaymentsConfig struct {
	MaxAttempts       int           `envconfig:"CINEMA_PAYMENTS_MAX_ATTEMPTS" default:"5"`
	ChargeTimeout     time.Duration `envconfig:"CINEMA_PAYMENTS_CHARGE_TIMEOUT" default:"15s"`
	StaleAfter        time.Duration `envconfig:"CINEMA_PAYMENTS_STALE_AFTER" default:"30m"`
	ReconcileInterval time.Duration `envconfig:"CINEMA_PAYMENTS_RECONCILE_INTERVAL" default:"5m"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CINEMA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CINEMA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CINEMA_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CINEMA_OUTBOX_RETENTION" default:"720h"`
}

type PubSubConfig struct {
	ProjectID                string `envconfig:"CINEMA_PUBSUB_PROJECT_ID"`
	NotificationTopic        string `envconfig:"CINEMA_PUBSUB_NOTIFICATION_TOPIC" default:"cinema-notification-events"`
	OrdersTopic              string `envconfig:"CINEMA_PUBSUB_ORDERS_TOPIC" default:"cinema-order-events"`
	NotificationSubscription string `envconfig:"CINEMA_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"cinema-notification-events-mailer"`
}

type SendgridConfig struct {
	APIKey               string `envconfig:"CINEMA_SENDGRID_API_KEY"`
	DefaultFrom          string `envconfig:"CINEMA_SENDGRID_FROM_EMAIL"`
	PaymentTemplateID    string `envconfig:"CINEMA_SENDGRID_PAYMENT_TEMPLATE_ID"`
	ActivationTemplateID string `envconfig:"CINEMA_SENDGRID_ACTIVATION_TEMPLATE_ID"`
	ActivationBaseURL    string `envconfig:"CINEMA_SENDGRID_ACTIVATION_BASE_URL" default:"http://localhost:8000/api/v1/accounts/activate"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
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
