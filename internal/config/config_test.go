package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
server:
  port: 8080
database:
  driver: postgres
  postgres:
    host: db.internal
    database: donaciones
    user: app
cache:
  driver: memory
  configuration_ttl: 10m
auth:
  jwt_secret: s3cret
scheduler:
  billing_time: "03:30"
  timezone: America/Guayaquil
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ConfigurationTTL)
	assert.Equal(t, "03:30", cfg.Scheduler.BillingTime)
	assert.Equal(t, "0 1 1 * *", cfg.Scheduler.MonthlyStatsCron)
	assert.Equal(t, 24*time.Hour, cfg.Auth.AccessTTL)
	assert.Equal(t, "local", cfg.Storage.Driver)
	assert.InDelta(t, 1.0, cfg.Donations.DefaultPointsPerDollar, 0.0001)

	loc, err := cfg.Scheduler.GetLocation()
	require.NoError(t, err)
	assert.Equal(t, "America/Guayaquil", loc.String())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("CACHE_CONFIGURATION_TTL", "45m")

	cfg, err := Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 45*time.Minute, cfg.Cache.ConfigurationTTL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Driver:   "postgres",
				Postgres: PostgresConfig{Host: "localhost", Database: "donaciones", User: "app"},
			},
			Cache:   CacheConfig{Driver: "memory"},
			Auth:    AuthConfig{JWTSecret: "secret"},
			Storage: StorageConfig{Driver: "local", BasePath: "./storage"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing host", func(c *Config) { c.Database.Postgres.Host = "" }, "database.postgres.host is required"},
		{"sqlite", func(c *Config) { c.Database.Driver = "sqlite"; c.Database.SQLite.Path = "x.db" }, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database.driver"},
		{"redis without host", func(c *Config) { c.Cache.Driver = "redis" }, "database.redis.host is required"},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret is required"},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = "s3" }, "storage.s3.bucket is required"},
		{"payments without key", func(c *Config) { c.Payments.Enabled = true }, "midtrans_server_key is required"},
		{"mail without host", func(c *Config) { c.Mail.Enabled = true }, "mail.host is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgresConfig_URL(t *testing.T) {
	c := PostgresConfig{Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.URL())
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", c.DSN())
}
