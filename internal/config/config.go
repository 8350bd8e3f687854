// Package config loads runtime configuration from defaults, an optional
// YAML file and GRIDPOINT_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the gridpoint service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Query    QueryConfig    `mapstructure:"query"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx-compatible connection URL.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis settings for ingest rate limiting.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NATSConfig holds the optional job wake-up messaging settings.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
	Subject string `mapstructure:"subject"`
}

// AuthConfig holds token validation settings. Tokens are issued by the
// external auth service; this service only verifies them.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	AsyncThresholdBytes int64         `mapstructure:"async_threshold_bytes"`
	MaxBodyBytes        int64         `mapstructure:"max_body_bytes"`
	BatchSize           int           `mapstructure:"batch_size"`
	SpoolDir            string        `mapstructure:"spool_dir"`
	Workers             int           `mapstructure:"workers"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	RateLimit           int           `mapstructure:"rate_limit"`
	RateWindow          time.Duration `mapstructure:"rate_window"`
}

// QueryConfig bounds the scoped query gateway.
type QueryConfig struct {
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "gridpoint")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "gridpoint")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.subject", "gridpoint.ingest.jobs")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("ingest.async_threshold_bytes", 1<<20)
	v.SetDefault("ingest.max_body_bytes", 256<<20)
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.spool_dir", "/var/spool/gridpoint")
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.poll_interval", "5s")
	v.SetDefault("ingest.rate_limit", 120)
	v.SetDefault("ingest.rate_window", "1m")

	v.SetDefault("query.default_limit", 100)
	v.SetDefault("query.max_limit", 1000)
	v.SetDefault("query.timeout", "15s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("GRIDPOINT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
