package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"
	"testing"

	"github.com/kirillkom/assistant-files/internal/config"
	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
)

// attachmentsFake decodes ".txt" files as text and fails everything else
// with the configured error.
type attachmentsFake struct {
	err error
}

func (f attachmentsFake) Ingest(ctx context.Context, file domain.SourceFile) ([]domain.AttachedDocument, error) {
	var docs []domain.AttachedDocument
	err := f.Attach(ctx, file, func(doc domain.AttachedDocument) { docs = append(docs, doc) })
	return docs, err
}

func (f attachmentsFake) Attach(_ context.Context, file domain.SourceFile, onAttach ports.AttachHandler) error {
	if file.DeclaredType.Essence() != "text/plain" {
		if f.err != nil {
			return f.err
		}
		return domain.WrapError(domain.ErrDecodeFailed, "attach", errors.New("cannot decode "+file.Name))
	}
	onAttach(domain.AttachedDocument{Name: file.Name, DeclaredType: file.DeclaredType, Raw: string(file.Data), Parsed: string(file.Data)})
	return nil
}

func (f attachmentsFake) AttachAll(ctx context.Context, files []domain.SourceFile, onAttach ports.AttachHandler) []ports.AttachFailure {
	var failures []ports.AttachFailure
	for _, file := range files {
		if err := f.Attach(ctx, file, onAttach); err != nil {
			failures = append(failures, ports.AttachFailure{Name: file.Name, Err: err})
		}
	}
	return failures
}

func (f attachmentsFake) IngestAll(ctx context.Context, files []domain.SourceFile) ([]domain.AttachedDocument, []ports.AttachFailure) {
	var docs []domain.AttachedDocument
	failures := f.AttachAll(ctx, files, func(doc domain.AttachedDocument) { docs = append(docs, doc) })
	return docs, failures
}

// filesFake marks every presented reference as refreshed.
type filesFake struct {
	preview domain.Preview
}

func (f filesFake) Present(_ context.Context, ref domain.GeneratedFileReference) (domain.Preview, domain.GeneratedFileReference) {
	updated := ref
	updated.Values.PresignedURL = "https://cdn.example/fresh/" + ref.Values.FileKey
	preview := f.preview
	if preview.Kind == "" {
		preview = domain.Preview{Kind: domain.PreviewBinary, State: domain.PreviewReady, Message: domain.MessageBinary}
	}
	preview.Download = domain.DownloadLink{Name: "out.bin", URL: updated.Values.PresignedURL, NeedsRefresh: f.preview.Download.NeedsRefresh}
	return preview, updated
}

func (f filesFake) Download(_ context.Context, ref domain.GeneratedFileReference) (domain.DownloadLink, domain.GeneratedFileReference) {
	updated := ref
	updated.Values.PresignedURL = "https://cdn.example/fresh/" + ref.Values.FileKey
	return domain.DownloadLink{Name: "out.bin", URL: updated.Values.PresignedURL}, updated
}

type referencesFake struct {
	mu     sync.Mutex
	stored map[string]domain.StoredReference
}

func (f *referencesFake) Get(_ context.Context, id string) (*domain.StoredReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref, ok := f.stored[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrReferenceNotFound, "get reference", errors.New("id="+id))
	}
	return &ref, nil
}

func (f *referencesFake) Save(_ context.Context, ref domain.StoredReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		f.stored = map[string]domain.StoredReference{}
	}
	f.stored[ref.ID] = ref
	return nil
}

type blobsFake map[string]string

func (f blobsFake) Save(context.Context, string, io.Reader) error { return nil }

func (f blobsFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrReferenceNotFound, "open blob", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader([]byte(data))), nil
}

type publisherFake struct {
	mu   sync.Mutex
	docs []string
}

func (f *publisherFake) PublishAttachment(_ context.Context, doc domain.AttachedDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc.Name)
	return nil
}

func newTestHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Attachments == nil {
		deps.Attachments = attachmentsFake{}
	}
	if deps.Files == nil {
		deps.Files = filesFake{}
	}
	return NewRouter(cfg, deps).Handler()
}

type uploadPart struct {
	name        string
	contentType string
	body        string
}

func multipartBody(t *testing.T, parts ...uploadPart) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+p.name+`"`)
		header.Set("Content-Type", p.contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart() error = %v", err)
		}
		if _, err := part.Write([]byte(p.body)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

type referenceQueueFake struct {
	mu        sync.Mutex
	published []domain.StoredReference
}

func (f *referenceQueueFake) PublishGeneratedFile(_ context.Context, ref domain.StoredReference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ref)
	return nil
}
