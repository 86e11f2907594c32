package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const insecureLaunchSecret = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"gateway"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"gateway"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"gateway"`
	PGMaxConns  int32  `env:"PG_MAX_CONNS" envDefault:"20"`

	PGStatementTimeout time.Duration `env:"PG_STATEMENT_TIMEOUT" envDefault:"5s"`

	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	MigrationsDir string `env:"MIGRATIONS_DIR"`

	// Server
	GatewayPort int `env:"GATEWAY_PORT" envDefault:"4100"`

	// Wallet
	WalletTimeout          time.Duration `env:"WALLET_TIMEOUT" envDefault:"10s"`
	WalletBreakerThreshold int           `env:"WALLET_BREAKER_THRESHOLD" envDefault:"5"`
	WalletBreakerReset     time.Duration `env:"WALLET_BREAKER_RESET" envDefault:"30s"`

	// Local wallet server
	WalletServerPort          int    `env:"WALLET_SERVER_PORT" envDefault:"4200"`
	WalletServerOpeningCredit string `env:"WALLET_SERVER_OPENING_CREDIT" envDefault:"1000"`

	// Provider credentials
	CredentialsFile string `env:"CREDENTIALS_FILE" envDefault:"config/credentials.yaml"`

	// Redis
	RedisEnabled bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisAddr    string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass    string        `env:"REDIS_PASSWORD"`
	RedisDB      int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL      time.Duration `env:"LOCK_TTL" envDefault:"30s"`

	// Kafka
	KafkaBrokers      string        `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled      bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaWriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" envDefault:"10s"`

	// Launch tokens
	LaunchTokenSecret string        `env:"LAUNCH_TOKEN_SECRET" envDefault:"change-me-in-production"`
	LaunchTokenTTL    time.Duration `env:"LAUNCH_TOKEN_TTL" envDefault:"12h"`

	// Operator API
	OperatorAPIKey   string        `env:"OPERATOR_API_KEY"`
	LaunchRateLimit  int           `env:"LAUNCH_RATE_LIMIT" envDefault:"60"`
	LaunchRateWindow time.Duration `env:"LAUNCH_RATE_WINDOW" envDefault:"1m"`

	// Outbox relay
	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
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
	if c.WalletTimeout <= 0 {
		return fmt.Errorf("WALLET_TIMEOUT must be positive, got %s", c.WalletTimeout)
	}
	if c.PGMaxConns < 1 {
		return fmt.Errorf("PG_MAX_CONNS must be at least 1, got %d", c.PGMaxConns)
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.LaunchTokenSecret == insecureLaunchSecret {
		return fmt.Errorf("LAUNCH_TOKEN_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.LaunchTokenSecret) < 32 {
		return fmt.Errorf("LAUNCH_TOKEN_SECRET is too short (%d chars); minimum 32 characters required", len(c.LaunchTokenSecret))
	}
	if c.OperatorAPIKey == "" {
		return fmt.Errorf("OPERATOR_API_KEY is required")
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
