package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graminate/finance-bfa-go/internal/config"
	"github.com/graminate/finance-bfa-go/internal/domain"
	"github.com/graminate/finance-bfa-go/internal/handler"
	"github.com/graminate/finance-bfa-go/internal/infra/cache"
	"github.com/graminate/finance-bfa-go/internal/infra/client"
	"github.com/graminate/finance-bfa-go/internal/infra/observability"
	"github.com/graminate/finance-bfa-go/internal/infra/resilience"
	"github.com/graminate/finance-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("backend_api_url", cfg.BackendAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Bool("jwt_verification", cfg.JWTSecret != ""),
		zap.Strings("cors_origins", cfg.CORSAllowedOrigins),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "graminate-finance-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Categories ---
	categories, err := config.LoadCategoryConfig(cfg.CategoryConfigPath)
	if err != nil {
		logger.Fatal("failed to load category config", zap.Error(err))
	}
	logger.Info("category tables loaded", zap.Strings("sub_types", categories.SubTypes()))

	// --- Cache ---
	var svcOpts []service.Option
	if cfg.CacheEnabled() {
		ledgerCache := cache.New[*domain.FinancialLedger](cfg.CacheTTL)
		defer ledgerCache.Stop()
		svcOpts = append(svcOpts, service.WithCache(ledgerCache))
	} else {
		logger.Info("ledger cache disabled", zap.Duration("cache_ttl", cfg.CacheTTL))
	}

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("graminate-backend", client.IsBreakerSuccess)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	backend := client.NewBackend(httpClient, cfg.BackendAPIURL, cb, resilienceCfg, logger)

	// --- Services ---
	financialSvc := service.NewFinancialService(
		client.NewSalesClient(backend),
		client.NewExpensesClient(backend),
		client.NewUsersClient(backend),
		categories,
		metrics,
		logger,
		svcOpts...,
	)
	verifier := service.NewTokenVerifier(cfg.JWTSecret)
	if !verifier.Enabled() {
		logger.Warn("JWT_SECRET not set: bearer tokens are forwarded to the backend unchecked")
	}

	// --- Router ---
	router := handler.NewRouter(
		financialSvc,
		verifier,
		handler.RouterConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
		},
		metrics,
		logger,
		backend.Health,
	)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
