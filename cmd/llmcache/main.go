package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/af-corp/llmcache/internal/config"
	"github.com/af-corp/llmcache/internal/gateway"
	"github.com/af-corp/llmcache/internal/llmcache"
	"github.com/af-corp/llmcache/internal/provider"
	"github.com/af-corp/llmcache/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}
	defer loader.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Open the cache store
	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open cache store", "backend", cfg.Cache.Backend, "error", err)
		os.Exit(1)
	}
	defer backend.close()
	backend.startJanitor(ctx, cfg.Cache.PurgeInterval, logger)

	metrics := telemetry.NewMetrics(nil)
	resolver := llmcache.NewResolver(llmcache.Options{
		Store: backend.store,
		Codec: llmcache.NewCodec(llmcache.CodecOptions{
			CompressThreshold: cfg.Cache.CompressThreshold,
			MaxDecodedBytes:   cfg.Cache.MaxDecodedBytes,
		}),
		TTL:      cfg.Cache.TTL,
		Logger:   logger,
		Metrics:  metrics,
		Backend:  cfg.Cache.Backend,
		Coalesce: cfg.Cache.CoalesceMisses,
	})

	// Build provider; rebuilt when provider.yaml changes
	var current atomic.Pointer[provider.OpenAI]
	current.Store(provider.NewOpenAI(*loader.Provider()))
	logger.Info("provider configured", "provider", provider.Describe(*loader.Provider()))
	loader.OnReload(func() {
		pcfg := *loader.Provider()
		current.Store(provider.NewOpenAI(pcfg))
		logger.Info("provider reloaded", "provider", provider.Describe(pcfg))
		if loader.Config().Cache.Backend != cfg.Cache.Backend {
			logger.Warn("cache backend changed; restart to apply", "running", cfg.Cache.Backend)
		}
	})

	handler := gateway.NewHandler(resolver,
		func() gateway.Provider { return current.Load() },
		loader.Config,
		backend.pinger,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Telemetry.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Telemetry.MetricsPort),
			Handler: mux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("llm cache proxy starting",
			"addr", addr,
			"version", version,
			"service", cfg.Service.Name,
			"backend", cfg.Cache.Backend,
		)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}
	stop()
	logger.Info("llm cache proxy stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
