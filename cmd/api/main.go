package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/assistant-files/internal/adapters/http"
	"github.com/kirillkom/assistant-files/internal/bootstrap"
	"github.com/kirillkom/assistant-files/internal/config"
	"github.com/kirillkom/assistant-files/internal/observability/logging"
	"github.com/kirillkom/assistant-files/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, serviceName, httpMetrics.Registry())
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Embedded document blobs are served from here, so they are pruned here
	// too; a worker may not be running.
	go app.PruneBlobs(ctx, nil)

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Attachments: app.Attachments,
		Files:       app.Files,
		References:  app.References,
		Blobs:       app.Blobs,
		Publisher:   app.Publisher(),
		Queue:       app.ReferenceQueue(),
		Metrics:     httpMetrics,
		Health:      app.Executor.States,
	}).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_failed", "error", err)
	}
}
