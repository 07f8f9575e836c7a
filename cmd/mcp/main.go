package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/assistant-files/internal/adapters/mcp"
	"github.com/kirillkom/assistant-files/internal/bootstrap"
	"github.com/kirillkom/assistant-files/internal/config"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/archive"
	"github.com/kirillkom/assistant-files/internal/observability/logging"
)

const serviceName = "mcp"

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	slog.SetDefault(logging.New(os.Stderr, serviceName, cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, serviceName, nil)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(app.Attachments, app.Files, app.References, mcpadapter.Options{
		MaxFileBytes: cfg.AttachMaxFileBytes,
		InferType:    archive.InferType,
	})
	if err := srv.ServeStdio(); err != nil {
		slog.Error("mcp_serve_failed", "error", err)
		os.Exit(1)
	}
}
