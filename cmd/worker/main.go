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

	"github.com/kirillkom/assistant-files/internal/bootstrap"
	"github.com/kirillkom/assistant-files/internal/config"
	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/usecase"
	"github.com/kirillkom/assistant-files/internal/observability/logging"
	"github.com/kirillkom/assistant-files/internal/observability/metrics"
)

const (
	serviceName = "worker"

	referenceTimeout = 2 * time.Minute
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, serviceName, workerMetrics.Registry())
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		slog.Error("worker_requires_nats", "hint", "set NATS_URL")
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go app.PruneBlobs(ctx, func(removed int) { workerMetrics.RecordPruned(serviceName, removed) })

	refresher := usecase.NewReferenceRefresher(app.Files, app.References)
	slog.Info("worker_subscribed", "subject", cfg.NATSGeneratedFilesSubject)
	err = app.Queue.SubscribeGeneratedFiles(ctx, func(handlerCtx context.Context, ref domain.StoredReference) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, referenceTimeout)
		defer cancel()

		start := time.Now()
		workerMetrics.StartReference()
		preview, _, err := refresher.Present(processCtx, ref)
		workerMetrics.FinishReference(serviceName, time.Since(start), err)
		if err == nil {
			slog.Info("reference_presented", "id", ref.ID, "kind", preview.Kind, "state", preview.State)
		}
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
