// Package main is the entry point for the tripcue service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tripcue/tripcue/internal/agent"
	"github.com/tripcue/tripcue/internal/api"
	"github.com/tripcue/tripcue/internal/archive"
	"github.com/tripcue/tripcue/internal/auth"
	"github.com/tripcue/tripcue/internal/config"
	"github.com/tripcue/tripcue/internal/judge"
	"github.com/tripcue/tripcue/internal/orchestrator"
	"github.com/tripcue/tripcue/internal/resilience"
	"github.com/tripcue/tripcue/internal/telemetry"
	"github.com/tripcue/tripcue/internal/tripstore"
	"github.com/tripcue/tripcue/internal/validator"
	"github.com/tripcue/tripcue/pkg/types"
)

const version = "0.1.0"

func main() {
	cfg := config.Load()

	// Structured logging
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting tripcue",
		slog.String("version", version),
		slog.String("port", cfg.Port),
		slog.String("log_level", cfg.LogLevel),
	)

	// Tracing
	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.OTLPEndpoint, "tripcue", version)
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	// Trip store
	var store tripstore.TripStore
	switch cfg.TripStoreType {
	case "redis":
		redisCfg := tripstore.DefaultRedisConfig()
		redisCfg.URL = cfg.RedisURL
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		redisCfg.TTL = cfg.TripStoreTTL
		redisStore, err := tripstore.NewRedisStore(redisCfg)
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory store", "error", err)
			store = tripstore.NewMemoryStore(&tripstore.Config{
				EventMaxLen: cfg.EventMaxLen,
				TTL:         cfg.TripStoreTTL,
			})
		} else {
			store = redisStore
			logger.Info("using Redis tripstore", slog.String("url", cfg.RedisURL))
		}
	default:
		store = tripstore.NewMemoryStore(&tripstore.Config{
			EventMaxLen: cfg.EventMaxLen,
			TTL:         cfg.TripStoreTTL,
		})
		logger.Info("using in-memory tripstore")
	}
	store = tripstore.Instrument(store)
	defer store.Close()

	// Content agents. The static set stands in for provider-backed
	// capabilities; each is wrapped with the retry policy so transient
	// failures never reach the collector.
	policy := resilience.Policy{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		AttemptTimeout: cfg.AttemptTimeout,
	}
	agents := []agent.Capability{
		resilience.Wrap(agent.NewStatic(types.RoleVideo, videoCatalog, 50*time.Millisecond, 0), policy),
		resilience.Wrap(agent.NewStatic(types.RoleMusic, musicCatalog, 30*time.Millisecond, 0), policy),
		resilience.Wrap(agent.NewStatic(types.RoleText, textCatalog, 20*time.Millisecond, 7), policy),
	}

	orch, err := orchestrator.New(agents, judge.NewScoreJudge(), store, orchestrator.Config{
		SoftTimeout:         cfg.SoftTimeout,
		HardTimeout:         cfg.HardTimeout,
		SoftMinimum:         cfg.SoftMinimum,
		HardMinimum:         cfg.HardMinimum,
		MaxConcurrentPoints: cfg.MaxConcurrentPoints,
	}, logger)
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	logger.Info("orchestrator initialized",
		slog.Int("agents", len(agents)),
		slog.Duration("soft_timeout", cfg.SoftTimeout),
		slog.Duration("hard_timeout", cfg.HardTimeout),
		slog.Int("max_concurrent_points", cfg.MaxConcurrentPoints),
	)

	// Request validator
	v, err := validator.New()
	if err != nil {
		logger.Error("failed to create validator", "error", err)
		v = nil
	}

	// Optional trip archive
	var archiver *archive.Exporter
	if cfg.ArchiveBucket != "" {
		archiver, err = archive.NewExporter(&archive.Config{
			Endpoint: cfg.ArchiveEndpoint,
			Bucket:   cfg.ArchiveBucket,
			Region:   cfg.ArchiveRegion,
			Prefix:   cfg.ArchivePrefix,
		}, logger)
		if err != nil {
			logger.Error("failed to create archive exporter, exports disabled", "error", err)
			archiver = nil
		} else {
			logger.Info("trip archive enabled", slog.String("bucket", cfg.ArchiveBucket))
		}
	}

	// API server
	handlers := api.NewHandlers(store, orch, v, archiver, cfg, logger)
	server := api.NewServer(handlers)

	var root http.Handler = server.Router()

	// Optional OIDC auth
	if cfg.OIDCEnabled && cfg.OIDCIssuer != "" {
		provider, err := auth.NewProvider(context.Background(), &auth.Config{
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
		})
		if err != nil {
			logger.Error("failed to create OIDC provider", "error", err)
			os.Exit(1)
		}
		authMw := auth.NewMiddleware(provider, &auth.MiddlewareConfig{Enabled: true})
		root = authMw.Handler(root)
		logger.Info("OIDC auth enabled", slog.String("issuer", cfg.OIDCIssuer))
	}

	// Rate limiting sits outermost so rejected requests never hit auth
	if cfg.RateLimitRPS > 0 {
		limiter := auth.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		root = limiter.Handler(root)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           root,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
