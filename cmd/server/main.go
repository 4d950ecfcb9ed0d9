package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"linkoraadmin/internal/api"
	"linkoraadmin/internal/auth"
	"linkoraadmin/internal/backend"
	"linkoraadmin/internal/config"
	"linkoraadmin/internal/dashboard"
	"linkoraadmin/internal/db"
	"linkoraadmin/internal/identity"
	"linkoraadmin/internal/listview"
	"linkoraadmin/internal/logging"
	"linkoraadmin/internal/metrics"
	"linkoraadmin/internal/moderation"
	"linkoraadmin/internal/notify"
	"linkoraadmin/internal/service"
	"linkoraadmin/internal/session"
	"linkoraadmin/internal/store"
	"linkoraadmin/internal/version"
	"linkoraadmin/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("linkora")

	dsn := cfg.DBDSN
	if cfg.DBDriver == db.DriverSQLite && dsn == "" {
		dsn = cfg.DBPath
	}
	sqdb, err := db.Open(cfg.DBDriver, dsn, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqdb.Close()
	if err := db.Migrate(sqdb, cfg.DBDriver); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st := store.New(sqdb, cfg.DBDriver)

	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword != "" {
		hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
		if err != nil {
			return fmt.Errorf("bootstrap admin hash: %w", err)
		}
		if err := st.EnsureAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminName, hash); err != nil {
			return fmt.Errorf("bootstrap admin create: %w", err)
		}
	}

	provider, err := identity.NewProvider(cfg, st, logger)
	if err != nil {
		return err
	}

	platform, closeBackend, err := openBackend(ctx, cfg, logger, m)
	if err != nil {
		return err
	}
	defer closeBackend()

	hub := notify.NewHub(logger, m)
	go hub.Run(ctx)
	center := notify.NewCenter(st, hub, logger)

	svc := service.New(st, logger)
	views := listview.NewRegistry(platform, listview.Options{
		Mode:           listview.Mode(cfg.ListMode),
		PageSize:       cfg.ListPageSize,
		SearchDebounce: cfg.SearchDebounce(),
		Logger:         logger,
	}, cfg.ViewIdleTimeout(), m)
	defer views.Close()
	stats := dashboard.NewService(platform, 15*time.Second, logger)
	defer stats.Close()
	profiles := dashboard.NewProfileDrafts(svc, cfg.ProfileDebounce(), logger)
	defer profiles.Stop()
	pages, err := web.New()
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Identity: provider,
		Relay:    session.NewRelay(cfg, logger, m),
		Views:    views,
		Dispatcher: moderation.New(platform, moderation.Options{
			Audit:    svc,
			Notifier: center,
			Metrics:  m,
			Logger:   logger,
			Timeout:  cfg.BackendTimeout(),
		}),
		Service:  svc,
		Stats:    stats,
		Profiles: profiles,
		Notify:   center,
		Pages:    pages,
		Store:    st,
		Backend:  platform,
	})

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("version", version.Current().Version),
			zap.String("identity_provider", cfg.IdentityProvider),
			zap.String("list_mode", cfg.ListMode),
		)
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return hsrv.Shutdown(shutdownCtx)
}

// openBackend picks the platform client: a no-op client when no base URL is configured,
// otherwise the HTTP client behind a Redis or in-memory list cache.
func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger, m *metrics.Metrics) (backend.API, func(), error) {
	if cfg.BackendBaseURL == "" {
		logger.Warn("BACKEND_BASE_URL is empty, moderation runs against a no-op backend")
		return backend.NoopClient{}, func() {}, nil
	}
	client := backend.NewHTTPClient(cfg.BackendBaseURL, cfg.BackendTimeout(), logger, m)
	if cfg.RedisURL != "" {
		rdb, err := backend.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		cached := backend.NewCachedAPI(client, backend.NewRedisCache(rdb, cfg.ListCacheTTL()), logger, m)
		return cached, func() { _ = rdb.Close() }, nil
	}
	mem := backend.NewMemoryCache(cfg.ListCacheTTL())
	return backend.NewCachedAPI(client, mem, logger, m), mem.Close, nil
}
