package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/campuskeep/campuskeep/pkg/audit"
	"github.com/campuskeep/campuskeep/pkg/auth"
	"github.com/campuskeep/campuskeep/pkg/claims"
	"github.com/campuskeep/campuskeep/pkg/config"
	"github.com/campuskeep/campuskeep/pkg/forum"
	"github.com/campuskeep/campuskeep/pkg/identity"
	"github.com/campuskeep/campuskeep/pkg/observability"
	"github.com/campuskeep/campuskeep/pkg/policy"
	"github.com/campuskeep/campuskeep/pkg/server"
	"github.com/campuskeep/campuskeep/pkg/store"
)

func runServer(errOut io.Writer) int {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		fmt.Fprintf(errOut, "server failed: %v\n", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	backing, ready, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() { _ = redisClient.Close() }()
	}

	recorder := audit.NewLogger()
	lifecycle := claims.NewLifecycle(engine, backing, recorder, logger)
	guard := forum.NewGuard(engine, backing, recorder, logger)

	srv, err := server.New(lifecycle, guard, server.Options{
		Resolver: buildResolver(cfg, redisClient, logger),
		Limiter:  buildLimiter(cfg, redisClient),
		RPM:      cfg.RateLimitRPM,
		Ready:    ready,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler := srv.Routes()
	if cfg.OTLPEndpoint != "" {
		provider, err := observability.New(ctx, &observability.Config{
			ServiceName:    "campuskeep",
			ServiceVersion: "1.0.0",
			Environment:    "production",
			OTLPEndpoint:   cfg.OTLPEndpoint,
			SampleRate:     1.0,
			BatchTimeout:   5 * time.Second,
			Enabled:        true,
		})
		if err != nil {
			return fmt.Errorf("observability: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
		handler = provider.Middleware(handler)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("campuskeep listening", "port", cfg.Port, "store", cfg.StoreBackend)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*policy.Engine, error) {
	if cfg.ProfilePath == "" {
		return policy.NewEngine(), nil
	}
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	overlay, err := profile.Overlay()
	if err != nil {
		return nil, err
	}
	if overlay == nil {
		return policy.NewEngine(), nil
	}
	logger.Info("policy overlay active", "profile", profile.Name, "deny_rules", len(profile.DenyRules))
	return policy.NewEngineWithOverlay(overlay), nil
}

type domainStore interface {
	claims.Store
	forum.Store
}

func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domainStore, func(ctx context.Context) error, func(), error) {
	noop := func() {}
	switch cfg.StoreBackend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("postgres open: %w", err)
		}
		s := store.NewPostgres(db)
		if err := s.Init(ctx); err != nil {
			_ = db.Close()
			return nil, nil, noop, fmt.Errorf("postgres init: %w", err)
		}
		return s, db.PingContext, func() { _ = db.Close() }, nil

	case "sqlite":
		// Lite mode: one node, no external database.
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("sqlite open: %w", err)
		}
		s, err := store.NewSQLite(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, noop, fmt.Errorf("sqlite init: %w", err)
		}
		logger.Info("lite mode: sqlite persistence", "path", cfg.SQLitePath)
		return s, db.PingContext, func() { _ = db.Close() }, nil

	case "memory":
		logger.Warn("memory store selected: data will not survive restarts")
		return store.NewMemory(), nil, noop, nil

	default:
		return nil, nil, noop, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func buildResolver(cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) identity.Resolver {
	var resolvers identity.MultiResolver
	if redisClient != nil {
		resolvers = append(resolvers, identity.NewRedisSessionStore(redisClient))
	}
	if cfg.ServiceTokenKey != "" {
		resolvers = append(resolvers, identity.NewServiceTokenResolver([]byte(cfg.ServiceTokenKey), cfg.ServiceTokenIssuer))
	}
	if len(resolvers) == 0 {
		// Guests still work; every presented token is rejected.
		logger.Warn("no token resolver configured: all bearer tokens will be rejected")
		return nil
	}
	return resolvers
}

func buildLimiter(cfg *config.Config, redisClient *redis.Client) auth.Limiter {
	if redisClient != nil {
		return auth.NewRedisLimiter(redisClient, cfg.RateLimitRPM, cfg.RateLimitBurst)
	}
	return auth.NewLocalLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
