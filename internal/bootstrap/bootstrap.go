package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/assistant-files/internal/config"
	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
	"github.com/kirillkom/assistant-files/internal/core/usecase"
	"github.com/kirillkom/assistant-files/internal/infrastructure/accessurl"
	rediscache "github.com/kirillkom/assistant-files/internal/infrastructure/cache/redis"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/archive"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/docx"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/jsondoc"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/pdfdoc"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/plaintext"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/spreadsheet"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/yamldoc"
	"github.com/kirillkom/assistant-files/internal/infrastructure/fetch"
	"github.com/kirillkom/assistant-files/internal/infrastructure/queue/nats"
	"github.com/kirillkom/assistant-files/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/assistant-files/internal/infrastructure/resilience"
	"github.com/kirillkom/assistant-files/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/assistant-files/internal/observability/metrics"
)

// App holds the wired services. Queue and References are nil when their
// backends are not configured.
type App struct {
	Config config.Config

	Attachments *usecase.AttachmentIngestor
	Files       *usecase.GeneratedFilePresenter
	Blobs       *localfs.Storage
	References  ports.ReferenceRepository
	Queue       *nats.Queue
	Executor    *resilience.Executor

	closeFn func()
}

// New wires the pipeline. Pipeline metrics are registered on registerer when
// it is non-nil.
func New(ctx context.Context, cfg config.Config, service string, registerer prometheus.Registerer) (*App, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var observer ports.PipelineObserver
	if registerer != nil {
		observer = metrics.NewPipelineMetrics(registerer, service)
	}

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	resilienceCfg.BreakerEnabled = cfg.ResilienceBreakerEnabled
	executor := resilience.NewExecutor(resilienceCfg)

	blobs, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}

	var references ports.ReferenceRepository
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { closeDB(db) })
		repo := postgres.NewReferenceRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		references = repo
	}

	var queue *nats.Queue
	if cfg.NATSURL != "" {
		queue, err = nats.New(cfg.NATSURL, nats.Options{
			AttachmentsSubject: cfg.NATSAttachmentsSubject,
			GeneratedSubject:   cfg.NATSGeneratedFilesSubject,
			ResilienceExecutor: executor,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
	}

	var issuer ports.AccessURLIssuer = accessurl.New(cfg.AccessURLIssuerURL, accessurl.Options{
		Path:     cfg.AccessURLIssuerPath,
		Token:    cfg.AccessURLIssuerToken,
		Timeout:  cfg.FetchTimeout(),
		Executor: executor,
	})
	if cfg.RedisAddr != "" {
		cache, err := rediscache.New(ctx, rediscache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init access url cache: %w", err)
		}
		closers = append(closers, func() { _ = cache.Close() })
		issuer = usecase.NewCachedIssuer(issuer, cache, nil)
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:  cfg.FetchTimeout(),
		MaxBytes: cfg.FetchMaxBytes,
		Executor: executor,
	})

	attachments := usecase.NewAttachmentIngestor(
		NewDecoderRegistry(),
		archive.NewExpander(archive.Options{
			InferMemberTypes: cfg.AttachInferMemberTypes,
			MaxMemberBytes:   cfg.AttachMaxFileBytes,
		}),
		observer,
		usecase.IngestOptions{
			MaxFileBytes:       cfg.AttachMaxFileBytes,
			ArchiveConcurrency: cfg.AttachArchiveConcurrency,
			FileConcurrency:    cfg.AttachFileConcurrency,
			MaxArchiveDepth:    cfg.AttachMaxArchiveDepth,
		},
	)
	files := usecase.NewGeneratedFilePresenter(issuer, fetcher, blobs, observer, usecase.PresenterOptions{
		BlobBaseURL: cfg.BlobBaseURL,
	})

	return &App{
		Config: cfg,

		Attachments: attachments,
		Files:       files,
		Blobs:       blobs,
		References:  references,
		Queue:       queue,
		Executor:    executor,

		closeFn: closeAll,
	}, nil
}

// NewDecoderRegistry binds every supported declared type to its decoder.
// Undeclared and unknown types fall back to the text decoder.
func NewDecoderRegistry() *usecase.DecoderRegistry {
	return usecase.NewDecoderRegistry(
		usecase.DecoderBinding{Name: "text", Decoder: plaintext.NewDecoder()},
		usecase.DecoderBinding{Name: "pdf", Types: []domain.MediaType{domain.MediaTypePDF}, Decoder: pdfdoc.NewDecoder()},
		usecase.DecoderBinding{Name: "docx", Types: []domain.MediaType{domain.MediaTypeDocx}, Decoder: docx.NewDecoder()},
		usecase.DecoderBinding{Name: "json", Types: []domain.MediaType{domain.MediaTypeJSON}, Decoder: jsondoc.NewDecoder()},
		usecase.DecoderBinding{Name: "yaml", Types: []domain.MediaType{domain.MediaTypeYAML, domain.MediaTypeYAMLLegacy}, Decoder: yamldoc.NewDecoder()},
		usecase.DecoderBinding{Name: "spreadsheet", Types: []domain.MediaType{domain.MediaTypeXlsx}, Decoder: spreadsheet.NewDecoder()},
	)
}

// Publisher returns the attachment publisher, or nil without a queue.
func (a *App) Publisher() ports.AttachmentPublisher {
	if a.Queue == nil {
		return nil
	}
	return a.Queue
}

// ReferenceQueue returns the generated-file publisher, or nil without a queue.
func (a *App) ReferenceQueue() ports.ReferencePublisher {
	if a.Queue == nil {
		return nil
	}
	return a.Queue
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("postgres_close_failed", "error", err)
	}
}
