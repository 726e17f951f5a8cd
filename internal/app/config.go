package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Snapshot sources.
const (
	SourceHTTP = "http"
	SourceS3   = "s3"
)

// Preference backends.
const (
	PrefsRedis    = "redis"
	PrefsPostgres = "postgres"
	PrefsMemory   = "memory"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"45s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// PGDSN is optional. Without it preferences fall back to Redis and load history is off.
	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	StorageDomain  string        `envconfig:"STORAGE_DOMAIN" default:"blob.core.windows.net"`
	SnapshotSource string        `envconfig:"SNAPSHOT_SOURCE" default:"http"`
	S3Region       string        `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint     string        `envconfig:"S3_ENDPOINT"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	SnapshotTTL    time.Duration `envconfig:"SNAPSHOT_TTL" default:"5m"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"24h"`

	PrefsBackend string        `envconfig:"PREFS_BACKEND" default:"redis"`
	PrefsTTL     time.Duration `envconfig:"PREFS_TTL" default:"8760h"`
	DefaultsFile string        `envconfig:"DEFAULTS_FILE"`
	Timezone     string        `envconfig:"DASHBOARD_TIMEZONE" default:"Local"`

	RefreshCron string `envconfig:"REFRESH_CRON" default:"*/15 * * * *"`
	WorkerAddr  string `envconfig:"WORKER_ADDR" default:":9090"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	switch cfg.SnapshotSource {
	case SourceHTTP, SourceS3:
	default:
		return nil, fmt.Errorf("unsupported snapshot source %q", cfg.SnapshotSource)
	}
	switch cfg.PrefsBackend {
	case PrefsRedis, PrefsMemory:
	case PrefsPostgres:
		if cfg.PGDSN == "" {
			return nil, errors.New("postgres preferences require PG_DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported preferences backend %q", cfg.PrefsBackend)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Location resolves DASHBOARD_TIMEZONE. Day boundaries and displayed times use it.
func (c *Config) Location() (*time.Location, error) {
	if c == nil || c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
