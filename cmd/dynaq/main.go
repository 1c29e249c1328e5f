package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/radiusdt/dynaq/internal/config"
	"github.com/radiusdt/dynaq/internal/database"
	"github.com/radiusdt/dynaq/internal/geo"
	"github.com/radiusdt/dynaq/internal/httpserver"
	"github.com/radiusdt/dynaq/internal/metrics"
	"github.com/radiusdt/dynaq/internal/middleware"
	"github.com/radiusdt/dynaq/internal/storage"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("starting DynaQ tracking service",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("catalog", cfg.Catalog.Driver),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deps := &httpserver.Dependencies{
		Config: cfg,
		Logger: logger,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.NewMetrics("dynaq", nil)
	}

	conns, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer conns.Close()

	if conns.Postgres != nil && cfg.Catalog.EnsureSchema {
		if err := storage.EnsureSchema(ctx, conns.Postgres.Pool); err != nil {
			logger.Fatal("failed to create schema", zap.Error(err))
		}
	}
	deps.DB = conns.Postgres
	deps.Redis = conns.Redis
	deps.Badger = conns.Badger

	if cfg.Geo.Enabled {
		provider, err := geo.NewMaxMindProvider(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Warn("GeoIP database not available, country enrichment disabled", zap.Error(err))
		} else {
			resolver := geo.NewResolver(provider, cfg.Geo.CacheSize, cfg.Geo.CacheTTL)
			defer resolver.Close()
			deps.Geo = resolver
			logger.Info("GeoIP enrichment enabled", zap.String("path", cfg.Geo.DatabasePath))
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpserver.NewServer(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
