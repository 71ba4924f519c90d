package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// envPrefix is stripped from environment variables. Double underscore nests:
// APILENS_SERVER__READ_TIMEOUT becomes server.read_timeout.
const envPrefix = "APILENS_"

type Config struct {
	Primary       Primary             `koanf:"primary" validate:"required"`
	Server        ServerConfig        `koanf:"server" validate:"required"`
	Database      DatabaseConfig      `koanf:"database" validate:"required"`
	Redis         RedisConfig         `koanf:"redis" validate:"required"`
	Queue         QueueConfig         `koanf:"queue" validate:"required"`
	Ingest        IngestConfig        `koanf:"ingest" validate:"required"`
	GeoIP         GeoIPConfig         `koanf:"geoip"`
	Observability ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required,oneof=dev staging prod"`
}

type ServerConfig struct {
	Port         string `koanf:"port" validate:"required"`
	ReadTimeout  int    `koanf:"read_timeout" validate:"required"`
	WriteTimeout int    `koanf:"write_timeout" validate:"required"`
	IdleTimeout  int    `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"required"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"required"`
}

// URL renders the config as a pgx connection string.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `koanf:"addr" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type QueueConfig struct {
	MaxAttempts    int `koanf:"max_attempts" validate:"required,gte=1"`
	BackoffBaseMS  int `koanf:"backoff_base_ms" validate:"required,gte=1"`
	RequestWorkers int `koanf:"request_workers" validate:"required,gte=1"`
	AppLogWorkers  int `koanf:"app_log_workers" validate:"required,gte=1"`
}

// BackoffBase returns the first retry delay; each further retry doubles it.
func (q QueueConfig) BackoffBase() time.Duration {
	return time.Duration(q.BackoffBaseMS) * time.Millisecond
}

type IngestConfig struct {
	MaxRequestsPerBatch int `koanf:"max_requests_per_batch" validate:"required,gte=1"`
	MaxLogsPerBatch     int `koanf:"max_logs_per_batch" validate:"required,gte=1"`
	RateLimitPerMinute  int `koanf:"rate_limit_per_minute" validate:"required,gte=1"`
}

// GeoIPConfig points at a local MMDB country database. An empty path runs
// ingestion with country enrichment degraded to null.
type GeoIPConfig struct {
	DatabasePath string `koanf:"database_path"`
}

type ObservabilityConfig struct {
	Enabled     bool   `koanf:"enabled"`
	AppName     string `koanf:"app_name"`
	LicenseKey  string `koanf:"license_key"`
	ServiceName string `koanf:"-"`
	Environment string `koanf:"-"`
}

// Validate checks that an enabled observability config is complete.
func (o ObservabilityConfig) Validate() error {
	if o.Enabled && o.LicenseKey == "" {
		return fmt.Errorf("observability enabled but license_key is empty")
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Primary.Env == "" {
		c.Primary.Env = "dev"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 1800
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.BackoffBaseMS == 0 {
		c.Queue.BackoffBaseMS = 2000
	}
	if c.Queue.RequestWorkers == 0 {
		c.Queue.RequestWorkers = 2
	}
	if c.Queue.AppLogWorkers == 0 {
		c.Queue.AppLogWorkers = 1
	}
	if c.Ingest.MaxRequestsPerBatch == 0 {
		c.Ingest.MaxRequestsPerBatch = 1000
	}
	if c.Ingest.MaxLogsPerBatch == 0 {
		c.Ingest.MaxLogsPerBatch = 2000
	}
	if c.Ingest.RateLimitPerMinute == 0 {
		c.Ingest.RateLimitPerMinute = 600
	}
	if c.Observability.AppName == "" {
		c.Observability.AppName = "apilens"
	}
}

// Load reads configuration from APILENS_-prefixed environment variables using
// koanf, applies defaults, and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.Observability.ServiceName = cfg.Observability.AppName
	cfg.Observability.Environment = cfg.Primary.Env
	if err := cfg.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}
	return cfg, nil
}
