package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL   string `env:"DATABASE_URL"`
	PGHost        string `env:"PGHOST" envDefault:"localhost"`
	PGPort        int    `env:"PGPORT" envDefault:"5432"`
	PGUser        string `env:"PGUSER" envDefault:"racegame"`
	PGPassword    string `env:"PGPASSWORD" envDefault:"racegame"`
	PGDatabase    string `env:"PGDATABASE" envDefault:"racegame"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"false"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`

	// Settlement holds row locks for the whole credit, so the pool bounds
	// concurrent settlements and the statement timeout bounds lock waits.
	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime  time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	DBStatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"15s"`

	// Admin JWT
	JWTSecret      string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTAdminExpiry string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Server ports
	APIPort          int `env:"API_PORT" envDefault:"3000"`
	WalletServerPort int `env:"WALLET_SERVER_PORT" envDefault:"4001"`

	// Kafka
	KafkaBrokers     string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaTopicPrefix string `env:"KAFKA_TOPIC_PREFIX" envDefault:"racegame"`

	// Published outbox rows older than the retention are purged on OutboxPurgeSpec.
	OutboxRetention time.Duration `env:"OUTBOX_RETENTION" envDefault:"72h"`
	OutboxPurgeSpec string        `env:"OUTBOX_PURGE_SPEC" envDefault:"@hourly"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// Local calendar
	Timezone            string `env:"APP_TIMEZONE" envDefault:"Asia/Kolkata"`
	SettingsRefreshSpec string `env:"SETTINGS_REFRESH_SPEC" envDefault:"@every 1m"`

	// Envelopes and signatures
	CargameAESKey    string `env:"CARGAME_AES_KEY"`
	CargameAESIV     string `env:"CARGAME_AES_IV"`
	WebhookSecret    string `env:"CARGAME_WEBHOOK_SECRET"`
	GlobalBetURL     string `env:"GLOBAL_BET_URL"`
	GlobalBetSecret  string `env:"GLOBAL_BET_SECRET"`
	AppKey           string `env:"APP_KEY"`
	SSTokenCode      string `env:"SS_TOKEN_CODE" envDefault:"timilive"`
	JoyPrivateKeyPEM string `env:"JOY_PRIVATE_KEY"`

	// Outbound collaborators
	MainOracleURL     string        `env:"CARGAME_ORACLE_URL" envDefault:"https://timilive-car-game.asia-southeast1.firebasedatabase.app"`
	GlobalOracleURL   string        `env:"CARGAME_GLOBAL_ORACLE_URL" envDefault:"https://car-race-game-global.asia-southeast1.firebasedatabase.app"`
	OracleAuthToken   string        `env:"CARGAME_ORACLE_AUTH"`
	NotifierURL       string        `env:"NOTIFIER_URL" envDefault:"https://timivoilet.in/api/send-tencent-message"`
	TencentSDKAppID   int64         `env:"TENCENT_SDK_APPID"`
	TencentSecretKey  string        `env:"TENCENT_SECRET_KEY"`
	TencentAdminID    string        `env:"TENCENT_ADMIN_IDENTIFIER" envDefault:"administrator"`
	TencentAPIBaseURL string        `env:"TENCENT_API_BASE_URL" envDefault:"https://adminapiger.im.qcloud.com"`
	ImageBaseURL      string        `env:"IMAGE_BASE_URL" envDefault:"https://timivoilet.in/images/"`
	OutboundTimeout   time.Duration `env:"OUTBOUND_TIMEOUT" envDefault:"8s"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS %d and DB_MAX_CONNS %d are inconsistent", c.DBMinConns, c.DBMaxConns)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if len(c.CargameAESKey) != 32 || len(c.CargameAESIV) != 16 {
		return fmt.Errorf("CARGAME_AES_KEY must be 32 bytes and CARGAME_AES_IV 16 bytes")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("CARGAME_WEBHOOK_SECRET is required")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// Location returns the configured local time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
