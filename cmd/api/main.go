package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"mixpanel-logger/internal/api"
	"mixpanel-logger/internal/bootstrap"
	"mixpanel-logger/internal/config"
	"mixpanel-logger/internal/errorreporting"
	"mixpanel-logger/internal/telemetry"
)

const appName = "mixpanel-logger-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		Environment:    cfg.Env,
		Version:        cfg.Version,
		TracesExporter: cfg.OtelTracesExporter,
		OTLPEndpoint:   cfg.OtelOTLPEndpoint,
		OTLPHeaders:    telemetry.ParseOTLPHeaders(cfg.OtelOTLPHeadersRaw),
	})
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	reporter, err := errorreporting.New(errorreporting.Config{
		Provider:    cfg.ErrorReportingProvider,
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.Version,
		ServiceName: appName,
	})
	if err != nil {
		slog.Error("failed to initialize error reporting", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = reporter.Shutdown(context.Background())
	}()

	logger, cleanup, err := bootstrap.BuildLogger(ctx, cfg, reporter)
	if err != nil {
		slog.Error("failed to initialize analytics", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cleanup(flushCtx); err != nil {
			slog.Error("analytics shutdown incomplete", "error", err)
			errorreporting.Capture(flushCtx, reporter, err, map[string]string{"component": "analytics"})
		}
	}()

	apiServer := api.NewServer(appName, cfg.Env, cfg.Version, logger)

	baseHandler := apiServer.Handler()
	baseHandler = errorreporting.NewMiddleware(reporter).Wrap(baseHandler)
	baseHandler = otelhttp.NewHandler(baseHandler, "http")

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           baseHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("api server started", "addr", httpServer.Addr, "env", cfg.Env)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server terminated unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(httpServer)
}

func waitForShutdown(server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		return
	}

	slog.Info("server stopped")
}
