package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jhalvorsen/ledgerview/internal/config"
	"github.com/jhalvorsen/ledgerview/internal/infra/observability"
	"github.com/jhalvorsen/ledgerview/internal/ledgerd"

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
		zap.Int("port", cfg.LedgerdPort),
		zap.String("db_path", cfg.LedgerdDBPath),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("token_ttl", cfg.LedgerdTokenTTL),
	)

	// --- Tracing ---
	shutdown := observability.NoopTracer()
	if cfg.TracingOn {
		var err error
		shutdown, err = observability.InitTracer(cfg.OTLPEndpoint, "ledgerd")
		if err != nil {
			logger.Fatal("failed to init tracer", zap.Error(err))
		}
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Storage ---
	store, err := ledgerd.OpenStore(cfg.LedgerdDBPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	// --- Auth ---
	auth := ledgerd.NewAuthenticator(cfg.LedgerdJWTSecret, cfg.LedgerdTokenTTL)

	// --- Router ---
	router := ledgerd.NewRouter(store, auth, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.LedgerdPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.LedgerdPort))
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
