package nats

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

func TestDecodeReference(t *testing.T) {
	ref, err := decodeReference([]byte(`{"id":"msg-1","file_info":{"type":"text/csv","values":{"file_key":"u/1-FN-a.csv","presigned_url":"https://cdn.example/a.csv?Expires=1"}}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ref.ID != "msg-1" || ref.Reference.Type != domain.MediaTypeCSV || ref.Reference.Values.FileKey != "u/1-FN-a.csv" {
		t.Fatalf("unexpected reference: %+v", ref)
	}

	for _, payload := range []string{`not json`, `{"file_info":{"type":"text/csv"}}`, `{"id":"x","file_info":{}}`} {
		if _, err := decodeReference([]byte(payload)); err == nil {
			t.Fatalf("expected error for %s", payload)
		}
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(nats.ErrMaxPayload); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("payload errors are permanent, got %v", err)
	}
	if err := wrapTemporaryIfNeeded(errors.New("other")); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("unexpected temporary wrap: %v", err)
	}
}

func TestPublishAndSubscribeGeneratedFiles(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	subject := "test.generated." + time.Now().Format("150405.000000")
	queue, err := New(url, Options{GeneratedSubject: subject, AttachmentsSubject: subject + ".attachments"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan domain.StoredReference, 1)
	done := make(chan error, 1)
	go func() {
		done <- queue.SubscribeGeneratedFiles(ctx, func(_ context.Context, ref domain.StoredReference) error {
			received <- ref
			return nil
		})
	}()

	want := domain.StoredReference{ID: "r1", Reference: domain.GeneratedFileReference{Type: domain.MediaTypePNG}}
	deadline := time.After(4 * time.Second)
	for {
		if err := queue.PublishGeneratedFile(ctx, want); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case got := <-received:
			if got.ID != want.ID {
				t.Fatalf("unexpected reference %+v", got)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for message")
		}
	}
}
