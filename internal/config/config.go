package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, grouped by concern.
// Every field is read from the environment; defaults suit local development.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	App      AppConfig
	Auth     AuthConfig
	Jobs     JobsConfig
	GeoIP    GeoIPConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	TrustedProxies  []string      `env:"SERVER_TRUSTED_PROXIES" envSeparator:","`
}

// DatabaseConfig holds storage connection settings.
// Driver "postgres" goes through a pgx pool; "sqlite" opens SQLitePath.
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER" envDefault:"postgres"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"shortlink"`
	Password        string        `env:"DB_PASSWORD" envDefault:"dev_password_123"`
	DBName          string        `env:"DB_NAME" envDefault:"shortlink"`
	SSLMode         string        `env:"DB_SSLMODE" envDefault:"disable"`
	SQLitePath      string        `env:"DB_SQLITE_PATH" envDefault:"shortlink.db"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool          `env:"REDIS_ENABLED" envDefault:"true"`
	Host     string        `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string        `env:"REDIS_PORT" envDefault:"6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL time.Duration `env:"REDIS_CACHE_TTL" envDefault:"1h"`
}

// Recording policies for a visit whose analytics transaction fails.
const (
	RecordingBestEffort = "best_effort"
	RecordingStrict     = "strict"
)

// AppConfig holds application-specific settings
type AppConfig struct {
	Environment        string        `env:"APP_ENV" envDefault:"development"`
	BaseURL            string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	ShortCodeLength    int           `env:"SHORT_CODE_LENGTH" envDefault:"6"`
	MaxCodeAttempts    int           `env:"MAX_CODE_ATTEMPTS" envDefault:"10"`
	RecordingPolicy    string        `env:"RECORDING_POLICY" envDefault:"best_effort"`
	LocalCacheTTL      time.Duration `env:"LOCAL_CACHE_TTL" envDefault:"30s"`
	LocalCacheMaxItems int64         `env:"LOCAL_CACHE_MAX_ITEMS" envDefault:"10000"`
	RateLimitEnabled   bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"100"`
	PasswordAttempts   int           `env:"PASSWORD_ATTEMPTS_PER_WINDOW" envDefault:"5"`
	PasswordWindow     time.Duration `env:"PASSWORD_ATTEMPT_WINDOW" envDefault:"15m"`
	EnableMetrics      bool          `env:"ENABLE_METRICS" envDefault:"true"`
}

// AuthConfig holds token settings. Identity tokens are minted elsewhere and
// share JWTSecret with the access grants this service issues.
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" envDefault:"shortlink-dev-secret-change-in-production"`
	Issuer    string        `env:"JWT_ISSUER" envDefault:"shortlink"`
	GrantTTL  time.Duration `env:"ACCESS_GRANT_TTL" envDefault:"12h"`
}

// JobsConfig controls the background reconciliation and sweep jobs.
type JobsConfig struct {
	Enabled             bool          `env:"JOBS_ENABLED" envDefault:"true"`
	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`
	ReconcileBackfill   int           `env:"RECONCILE_BACKFILL_DAYS" envDefault:"2"`
	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"6h"`
	VisitorRetentionDay int           `env:"VISITOR_RETENTION_DAYS" envDefault:"2"`
}

// GeoIPConfig points at an optional MaxMind city database.
type GeoIPConfig struct {
	DatabasePath  string `env:"GEOIP_DB_PATH"`
	CountryHeader string `env:"GEOIP_COUNTRY_HEADER" envDefault:"CF-IPCountry"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"30"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the rest of the application cannot work with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.App.RecordingPolicy {
	case RecordingBestEffort, RecordingStrict:
	default:
		return fmt.Errorf("unsupported RECORDING_POLICY %q", c.App.RecordingPolicy)
	}

	if c.App.ShortCodeLength < 4 || c.App.ShortCodeLength > 20 {
		return fmt.Errorf("SHORT_CODE_LENGTH must be between 4 and 20, got %d", c.App.ShortCodeLength)
	}
	if c.App.MaxCodeAttempts < 1 {
		return fmt.Errorf("MAX_CODE_ATTEMPTS must be positive, got %d", c.App.MaxCodeAttempts)
	}
	if c.App.RateLimitPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive, got %d", c.App.RateLimitPerMinute)
	}
	if c.App.PasswordAttempts < 1 || c.App.PasswordWindow <= 0 {
		return fmt.Errorf("password attempt limit needs a positive count and window")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisAddr returns the Redis address in host:port format
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
