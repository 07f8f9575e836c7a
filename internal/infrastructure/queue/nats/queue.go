package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/infrastructure/resilience"
)

const workerQueueGroup = "generated-file-workers"

type attachmentEvent struct {
	ID          string                  `json:"id"`
	PublishedAt time.Time               `json:"published_at"`
	Document    domain.AttachedDocument `json:"document"`
}

type Queue struct {
	conn               *nats.Conn
	attachmentsSubject string
	generatedSubject   string
	executor           *resilience.Executor
}

type Options struct {
	AttachmentsSubject   string
	GeneratedSubject     string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("assistant-files"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:               conn,
		attachmentsSubject: options.AttachmentsSubject,
		generatedSubject:   options.GeneratedSubject,
		executor:           options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// PublishAttachment announces a decoded attachment as a JSON event.
func (q *Queue) PublishAttachment(ctx context.Context, doc domain.AttachedDocument) error {
	payload, err := json.Marshal(attachmentEvent{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
		Document:    doc,
	})
	if err != nil {
		return fmt.Errorf("marshal attachment: %w", err)
	}
	return q.publish(ctx, q.attachmentsSubject, payload)
}

// PublishGeneratedFile enqueues a reference for background presentation.
func (q *Queue) PublishGeneratedFile(ctx context.Context, ref domain.StoredReference) error {
	payload, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("marshal generated file: %w", err)
	}
	return q.publish(ctx, q.generatedSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeGeneratedFiles delivers references to handler until ctx is done,
// then drains the subscription.
func (q *Queue) SubscribeGeneratedFiles(ctx context.Context, handler func(context.Context, domain.StoredReference) error) error {
	sub, err := q.conn.QueueSubscribe(q.generatedSubject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		ref, err := decodeReference(msg.Data)
		if err != nil {
			slog.Warn("generated_file_message_invalid", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, ref); err != nil {
			slog.Error("generated_file_handler_failed", "id", ref.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func decodeReference(data []byte) (domain.StoredReference, error) {
	var ref domain.StoredReference
	if err := json.Unmarshal(data, &ref); err != nil {
		return domain.StoredReference{}, fmt.Errorf("decode reference: %w", err)
	}
	if strings.TrimSpace(ref.ID) == "" {
		return domain.StoredReference{}, errors.New("reference id is required")
	}
	if strings.TrimSpace(string(ref.Reference.Type)) == "" {
		return domain.StoredReference{}, errors.New("reference type is required")
	}
	return ref, nil
}
