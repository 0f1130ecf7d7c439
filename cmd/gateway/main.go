package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/studio_gateway/internal/config"
	"github.com/Skotchmaster/studio_gateway/internal/db"
	"github.com/Skotchmaster/studio_gateway/internal/events"
	"github.com/Skotchmaster/studio_gateway/internal/httpserver"
	"github.com/Skotchmaster/studio_gateway/internal/logging"
	"github.com/Skotchmaster/studio_gateway/internal/middleware"
	"github.com/Skotchmaster/studio_gateway/internal/proxy"
	"github.com/Skotchmaster/studio_gateway/internal/routes"
	"github.com/Skotchmaster/studio_gateway/internal/session"
	"github.com/Skotchmaster/studio_gateway/internal/tokens"
	"github.com/Skotchmaster/studio_gateway/pkg/apiclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway_stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()
	var ready []httpserver.Check

	sessions, check, closeStore, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	if check != nil {
		ready = append(ready, *check)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		publisher = kp
		logger.Info("session_events_enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("publisher_close_failed", "error", err)
		}
	}()

	var auditor events.Auditor = events.NopAuditor{}
	if cfg.ESURL != "" {
		es, err := events.NewESAuditor(events.ESConfig{
			URL:      cfg.ESURL,
			User:     cfg.ESUser,
			Password: cfg.ESPassword,
			Index:    cfg.ESIndex,
		}, logger)
		if err != nil {
			return err
		}
		auditor = es
		ready = append(ready, httpserver.Check{Name: "elasticsearch", Fn: es.Ping})
		defer es.Wait()
	}

	table := routes.Default()
	if cfg.RoutesFile != "" {
		if table, err = routes.Load(cfg.RoutesFile); err != nil {
			return err
		}
		logger.Info("routes_loaded", "file", cfg.RoutesFile, "count", len(table))
	}

	px, err := proxy.New(cfg.BackendURL, proxy.Options{
		Timeout: cfg.UpstreamTimeout,
		Auditor: auditor,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	api, err := apiclient.NewClient(apiclient.Config{
		BaseURL:   cfg.BackendURL,
		Timeout:   cfg.UpstreamTimeout,
		LoginPath: cfg.LoginPath,
		Logger:    logger,
	}, nil)
	if err != nil {
		return err
	}
	signer, err := tokens.NewSigner(cfg.NextAuthSecret)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = cfg.UpstreamTimeout + 5*time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	if err := httpserver.Register(e, &httpserver.Deps{
		Logger: logger,
		Routes: table,
		Proxy:  px,
		Auth: &httpserver.AuthHTTP{
			API:           api,
			Sessions:      sessions,
			Signer:        signer,
			Events:        publisher,
			SecureCookies: cfg.CookieSecure,
			SessionTTL:    cfg.SessionTTL,
		},
		Dashboard: &middleware.Dashboard{Signer: signer, Sessions: sessions, LoginPath: cfg.LoginPath},
		Origin:    middleware.OriginConfig{Allowed: cfg.AllowedOrigins},
		Ready:     ready,
	}); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway_started", "addr", cfg.ListenAddr, "backend", cfg.BackendURL, "session_store", cfg.SessionStore)
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("start: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("gateway_stopped")
	return nil
}

// openSessions builds the repository selected by SESSION_STORE together with
// its readiness probe and cleanup.
func openSessions(ctx context.Context, cfg *config.Config) (session.Repository, *httpserver.Check, func(), error) {
	switch cfg.SessionStore {
	case "db":
		gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		repo := &session.GormRepo{DB: gdb}
		if err := repo.Migrate(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate sessions: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, &httpserver.Check{Name: "database", Fn: sqlDB.PingContext}, func() { _ = sqlDB.Close() }, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		return session.NewRedisRepo(rdb), &httpserver.Check{Name: "redis", Fn: ping}, func() { _ = rdb.Close() }, nil
	default:
		return session.NewMemoryRepo(), nil, func() {}, nil
	}
}
