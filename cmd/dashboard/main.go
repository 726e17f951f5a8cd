package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spmonitor/dashboard/internal/app"
	downloadshttp "github.com/spmonitor/dashboard/internal/downloads/http"
	"github.com/spmonitor/dashboard/internal/downloads/svg"
	"github.com/spmonitor/dashboard/internal/observability"
	"github.com/spmonitor/dashboard/internal/platform/cache"
	"github.com/spmonitor/dashboard/internal/platform/db"
	"github.com/spmonitor/dashboard/internal/prefs"
	"github.com/spmonitor/dashboard/internal/shared"
	"github.com/spmonitor/dashboard/internal/view"
)

const sessionCookie = "dashboard_session"

func main() {
	if app.SkipStartup(nil, "dashboard") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	location, err := cfg.Location()
	if err != nil {
		logger.Error("load timezone", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var pool *pgxpool.Pool
	if cfg.PGDSN != "" {
		pool, err = db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		if err := app.Migrate(ctx, pool); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	defaults, err := prefs.LoadDefaults(cfg.DefaultsFile)
	if err != nil {
		logger.Error("load preference defaults", slog.Any("error", err))
		os.Exit(1)
	}
	store, err := app.NewPreferenceStore(cfg, redisClient, pool)
	if err != nil {
		logger.Error("init preference store", slog.Any("error", err))
		os.Exit(1)
	}
	preferences := prefs.New(store, defaults).WithConnectionCheck(app.ConnectionCheck(cfg))

	metrics := observability.NewMetrics()

	service, historyRepo, err := app.NewSnapshotService(ctx, cfg, app.SnapshotDeps{
		Redis:    redisClient,
		Pool:     pool,
		Observer: metrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("init snapshot service", slog.Any("error", err))
		os.Exit(1)
	}
	go func() {
		if err := service.ListenForInvalidation(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("snapshot invalidation listener stopped", slog.Any("error", err))
		}
	}()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, sessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	renderer := svg.Renderer{}
	downloadsHandler := downloadshttp.NewHandler(logger, service, preferences, templates, csrfManager, renderer, renderer, renderer)
	downloadsHandler.WithLocation(location)
	if cfg.SnapshotSource == app.SourceS3 {
		downloadsHandler.WithBucketSource()
	} else {
		downloadsHandler.WithStorageDomain(cfg.StorageDomain)
	}
	if historyRepo != nil {
		downloadsHandler.WithHistory(historyRepo)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		DownloadsHandler: downloadsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("source", cfg.SnapshotSource))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
