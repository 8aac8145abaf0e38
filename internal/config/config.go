// Package config handles application configuration loading and validation using Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Mail       MailConfig       `mapstructure:"mail"`
	Mattermost MattermostConfig `mapstructure:"mattermost"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Payments   PaymentsConfig   `mapstructure:"payments"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Donations  DonationsConfig  `mapstructure:"donations"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Environment  string        `mapstructure:"environment"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // postgres or sqlite
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN returns the key/value connection string used by gorm.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection URL used by golang-migrate.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// SQLiteConfig contains the local single-file database settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Driver           string        `mapstructure:"driver"` // memory or redis
	ConfigurationTTL time.Duration `mapstructure:"configuration_ttl"`
}

// AuthConfig contains token and credential settings.
type AuthConfig struct {
	JWTSecret        string        `mapstructure:"jwt_secret"`
	AccessTTL        time.Duration `mapstructure:"access_ttl"`
	RefreshTTL       time.Duration `mapstructure:"refresh_ttl"`
	ResetTokenTTL    time.Duration `mapstructure:"reset_token_ttl"`
	AdminEmailSuffix string        `mapstructure:"admin_email_suffix"`
}

// MailConfig contains outbound SMTP settings.
type MailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	From        string `mapstructure:"from"`
	FrontendURL string `mapstructure:"frontend_url"`
}

// MattermostConfig contains the operations webhook settings.
type MattermostConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
}

// StorageConfig selects where generated documents are stored.
type StorageConfig struct {
	Driver    string   `mapstructure:"driver"` // local or s3
	BasePath  string   `mapstructure:"base_path"`
	URLPrefix string   `mapstructure:"url_prefix"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config contains S3 bucket settings.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// PaymentsConfig contains the Midtrans gateway settings.
type PaymentsConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	MidtransServerKey string `mapstructure:"midtrans_server_key"`
	Production        bool   `mapstructure:"production"`
}

// SchedulerConfig contains background job settings.
type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	BillingTime      string `mapstructure:"billing_time"`       // HH:MM
	MonthlyStatsCron string `mapstructure:"monthly_stats_cron"` // Cron expression for the monthly snapshot
	ReminderDays     int    `mapstructure:"reminder_days"`
	Timezone         string `mapstructure:"timezone"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// DonationsConfig contains donation defaults.
type DonationsConfig struct {
	DefaultPointsPerDollar float64 `mapstructure:"default_points_per_dollar"`
}

// Load reads configuration from file and environment variables.
// A missing config file is tolerated; environment variables and defaults then apply.
func Load(configPath string) (*Config, error) {
	// Populate the environment from .env when present
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sistema-donaciones/")
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.base_url", "http://localhost:3000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.sqlite.path", "donaciones.db")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.configuration_ttl", 30*time.Minute)

	v.SetDefault("auth.access_ttl", 24*time.Hour)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("auth.reset_token_ttl", time.Hour)
	v.SetDefault("auth.admin_email_suffix", "@admin.com")

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "no-reply@donaciones.org")
	v.SetDefault("mail.frontend_url", "http://localhost:4200")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.base_path", "./storage")
	v.SetDefault("storage.url_prefix", "")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.billing_time", "02:00")
	v.SetDefault("scheduler.monthly_stats_cron", "0 1 1 * *")
	v.SetDefault("scheduler.reminder_days", 3)
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("donations.default_points_per_dollar", 1.0)
}

// bindEnv binds environment variables explicitly (12-factor app compliance).
func bindEnv(v *viper.Viper) {
	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT", "NODE_ENV")
	_ = v.BindEnv("server.base_url", "SERVER_BASE_URL")

	// Database configuration
	_ = v.BindEnv("database.driver", "DB_DRIVER")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST", "DB_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT", "DB_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB", "DB_DATABASE")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER", "DB_USERNAME")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.sqlite.path", "SQLITE_PATH")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Cache configuration
	_ = v.BindEnv("cache.driver", "CACHE_DRIVER")
	_ = v.BindEnv("cache.configuration_ttl", "CACHE_CONFIGURATION_TTL")

	// Auth configuration
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.access_ttl", "JWT_EXPIRES_IN")
	_ = v.BindEnv("auth.refresh_ttl", "JWT_REFRESH_EXPIRES_IN")
	_ = v.BindEnv("auth.reset_token_ttl", "AUTH_RESET_TOKEN_TTL")
	_ = v.BindEnv("auth.admin_email_suffix", "AUTH_ADMIN_EMAIL_SUFFIX")

	// Mail configuration
	_ = v.BindEnv("mail.enabled", "MAIL_ENABLED")
	_ = v.BindEnv("mail.host", "MAIL_HOST")
	_ = v.BindEnv("mail.port", "MAIL_PORT")
	_ = v.BindEnv("mail.user", "MAIL_USER")
	_ = v.BindEnv("mail.password", "MAIL_PASSWORD")
	_ = v.BindEnv("mail.from", "MAIL_FROM")
	_ = v.BindEnv("mail.frontend_url", "FRONTEND_URL")

	// Mattermost configuration
	_ = v.BindEnv("mattermost.webhook_url", "MATTERMOST_WEBHOOK_URL")
	_ = v.BindEnv("mattermost.channel", "MATTERMOST_CHANNEL")
	_ = v.BindEnv("mattermost.enabled", "MATTERMOST_ENABLED")

	// Storage configuration
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("storage.base_path", "FILE_STORAGE_PATH")
	_ = v.BindEnv("storage.url_prefix", "STORAGE_URL_PREFIX")
	_ = v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	_ = v.BindEnv("storage.s3.region", "AWS_REGION")
	_ = v.BindEnv("storage.s3.public_url", "S3_PUBLIC_URL")

	// Payments configuration
	_ = v.BindEnv("payments.enabled", "PAYMENTS_ENABLED")
	_ = v.BindEnv("payments.midtrans_server_key", "MIDTRANS_SERVER_KEY")
	_ = v.BindEnv("payments.production", "MIDTRANS_PRODUCTION")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.billing_time", "SCHEDULER_BILLING_TIME")
	_ = v.BindEnv("scheduler.monthly_stats_cron", "SCHEDULER_MONTHLY_STATS_CRON")
	_ = v.BindEnv("scheduler.reminder_days", "SCHEDULER_REMINDER_DAYS")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	// Metrics configuration
	_ = v.BindEnv("metrics.prometheus.enabled", "PROMETHEUS_ENABLED")
	_ = v.BindEnv("metrics.prometheus.path", "PROMETHEUS_PATH")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Database.Redis.Host == "" {
			return fmt.Errorf("database.redis.host is required when cache.driver is redis")
		}
	default:
		return fmt.Errorf("unsupported cache.driver %q", c.Cache.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.BasePath == "" {
			return fmt.Errorf("storage.base_path is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when storage.driver is s3")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}

	if c.Payments.Enabled && c.Payments.MidtransServerKey == "" {
		return fmt.Errorf("payments.midtrans_server_key is required when payments are enabled")
	}
	if c.Mail.Enabled && c.Mail.Host == "" {
		return fmt.Errorf("mail.host is required when mail is enabled")
	}

	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
