package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/spmonitor/dashboard/internal/downloads"
	"github.com/spmonitor/dashboard/internal/downloads/history"
	"github.com/spmonitor/dashboard/internal/downloads/source"
	"github.com/spmonitor/dashboard/internal/platform/db"
	"github.com/spmonitor/dashboard/internal/prefs"
)

// SnapshotDeps are the shared clients both binaries hand to NewSnapshotService.
type SnapshotDeps struct {
	Redis    *redis.Client
	Pool     *pgxpool.Pool
	Observer downloads.LoadObserver
	Logger   *slog.Logger
}

// NewFetcher builds the fetcher selected by SNAPSHOT_SOURCE.
func NewFetcher(ctx context.Context, cfg *Config) (downloads.Fetcher, error) {
	switch cfg.SnapshotSource {
	case SourceS3:
		fetcher, err := source.NewS3Fetcher(ctx, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("s3 fetcher: %w", err)
		}
		return fetcher, nil
	case SourceHTTP, "":
		return source.NewHTTPFetcher(cfg.StorageDomain, nil, cfg.FetchTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot source %q", cfg.SnapshotSource)
	}
}

// ConnectionCheck returns the connection rule of the configured source. S3 addresses
// snapshots by bucket and key only.
func ConnectionCheck(cfg *Config) downloads.ConnectionCheck {
	if cfg.SnapshotSource == SourceS3 {
		return downloads.Connection.ValidateBucketObject
	}
	return downloads.Connection.Validate
}

// NewSnapshotService wires the fetcher, the Redis snapshot cache and, when Postgres is
// configured, the load history. The returned repository is nil without a pool.
func NewSnapshotService(ctx context.Context, cfg *Config, deps SnapshotDeps) (*downloads.Service, *history.Repository, error) {
	fetcher, err := NewFetcher(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	serviceCfg := downloads.ServiceConfig{
		Fetcher:  fetcher,
		Check:    ConnectionCheck(cfg),
		Observer: deps.Observer,
		Logger:   deps.Logger,
		TTL:      cfg.SnapshotTTL,
	}
	if deps.Redis != nil {
		serviceCfg.Cache = downloads.NewCache(deps.Redis, cfg.CacheTTL)
	}
	var repo *history.Repository
	if deps.Pool != nil {
		repo = history.NewRepository(deps.Pool)
		serviceCfg.Recorder = repo
	}
	return downloads.NewService(serviceCfg), repo, nil
}

// NewPreferenceStore returns the store selected by PREFS_BACKEND.
func NewPreferenceStore(cfg *Config, client *redis.Client, pool *pgxpool.Pool) (prefs.Store, error) {
	switch cfg.PrefsBackend {
	case PrefsPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres preferences need a database pool")
		}
		return prefs.NewPostgresStore(pool), nil
	case PrefsMemory:
		return prefs.NewMemoryStore(), nil
	case PrefsRedis, "":
		if client == nil {
			return nil, fmt.Errorf("redis preferences need a redis client")
		}
		return prefs.NewRedisStore(client, cfg.PrefsTTL), nil
	default:
		return nil, fmt.Errorf("unsupported preferences backend %q", cfg.PrefsBackend)
	}
}

// Migrate creates the preference and load history tables in one transaction.
func Migrate(ctx context.Context, pool db.Beginner) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if err := prefs.NewPostgresStore(tx).EnsureSchema(ctx); err != nil {
			return fmt.Errorf("migrate preferences: %w", err)
		}
		if err := history.NewRepository(tx).EnsureSchema(ctx); err != nil {
			return fmt.Errorf("migrate load history: %w", err)
		}
		return nil
	})
}
