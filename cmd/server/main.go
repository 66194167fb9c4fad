package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/dharmasatrya/skysearch/internal/cache"
	"github.com/dharmasatrya/skysearch/internal/config"
	"github.com/dharmasatrya/skysearch/internal/handler"
	"github.com/dharmasatrya/skysearch/internal/logger"
	"github.com/dharmasatrya/skysearch/internal/orchestrator"
	"github.com/dharmasatrya/skysearch/internal/providers"
	"github.com/dharmasatrya/skysearch/internal/ratelimit"
	"github.com/dharmasatrya/skysearch/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	resultCache := cache.New(store, cache.Config{
		FreshTTL:          cfg.Cache.FreshTTL,
		FallbackTTL:       cfg.Cache.FallbackTTL,
		ResultRetention:   cfg.Cache.ResultRetention,
		HistoryLimit:      cfg.Cache.HistoryLimit,
		SnapshotRetention: cfg.Cache.SnapshotRetention,
	}, log)
	go resultCache.Run(ctx, cfg.Cache.CleanupInterval)

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.Provider.RateLimit.RPS,
		BurstSize:         cfg.Provider.RateLimit.Burst,
	})
	limiter.SetLimit(ratelimit.EndpointSearch, cfg.Provider.RateLimit.RPS, cfg.Provider.RateLimit.Burst)
	// Price confirmation is user-driven and rarer than fan-out search.
	limiter.SetLimit(ratelimit.EndpointCheckPrice, cfg.Provider.RateLimit.RPS/2, cfg.Provider.RateLimit.Burst/2+1)

	client := providers.NewClient(providers.ClientConfig{
		Name:        cfg.Provider.Name,
		BaseURL:     cfg.Provider.BaseURL,
		APIKey:      cfg.Provider.APIKey,
		ResultLimit: cfg.Provider.ResultLimit,
		Limiter:     limiter,
	})
	if cfg.Provider.APIKey == "" {
		log.Warn("provider api key is empty, searches will be rejected upstream")
	}

	orch := orchestrator.New(client, resultCache, orchestrator.Config{
		QueryTimeout:    cfg.Provider.Timeout,
		MaxAttempts:     cfg.Provider.MaxAttempts,
		RetryDelay:      cfg.Provider.RetryDelay,
		AlternateRadius: cfg.Search.AlternateRadius,
		MaxConcurrency:  cfg.Search.MaxConcurrency,
	}, log)

	sessions, err := session.NewManager(cfg.Session.MaxSessions, orch, client, log)
	if err != nil {
		return err
	}
	defer sessions.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(logger.RequestLogger(log))

	handler.Register(e,
		handler.NewSearchHandler(orch),
		handler.NewSessionHandler(sessions),
		handler.NewLibraryHandler(resultCache, sessions),
	)

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting skysearch server",
			zap.String("addr", addr),
			zap.String("cache_backend", cfg.Cache.Backend),
			zap.String("provider", client.Name()),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config, log *zap.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		store, err := cache.NewRedisStore(cache.RedisConfig{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
		})
		if err != nil {
			return nil, err
		}
		log.Info("redis cache enabled", zap.String("host", cfg.Redis.Host), zap.String("port", cfg.Redis.Port))
		return store, nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, err
		}
		store, err := cache.NewSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info("sqlite cache enabled", zap.String("path", cfg.SQLite.Path))
		return store, nil
	default:
		log.Info("in-memory cache enabled")
		return cache.NewMemoryStore(), nil
	}
}
