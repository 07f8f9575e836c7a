package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

// Decoder converts the bytes of one file into a normalized document.
type Decoder interface {
	Decode(ctx context.Context, file domain.SourceFile) (*domain.AttachedDocument, error)
}

// ArchiveExpander opens an archive and materializes its non-directory members
// in enumeration order. An unreadable member is returned with its error set;
// only a failure to open the archive itself is returned as an error.
type ArchiveExpander interface {
	Expand(ctx context.Context, archive domain.SourceFile) ([]domain.ArchiveMember, error)
}

// AccessURLIssuer requests a fresh signed URL for a stored object.
type AccessURLIssuer interface {
	IssueAccessURL(ctx context.Context, locator, displayName string) (string, error)
}

// AccessURLCache keeps issued URLs until they expire.
type AccessURLCache interface {
	Get(ctx context.Context, locator string) (string, bool, error)
	Put(ctx context.Context, locator, url string, ttl time.Duration) error
}

// ContentFetcher reads the content behind a signed URL.
type ContentFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// BlobStore holds transient content served back to clients.
type BlobStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ReferenceRepository persists generated-file reference snapshots.
type ReferenceRepository interface {
	Get(ctx context.Context, id string) (*domain.StoredReference, error)
	Save(ctx context.Context, ref domain.StoredReference) error
}

// AttachmentPublisher announces decoded attachments to other services.
type AttachmentPublisher interface {
	PublishAttachment(ctx context.Context, doc domain.AttachedDocument) error
}

// ReferencePublisher hands generated-file references to background workers.
type ReferencePublisher interface {
	PublishGeneratedFile(ctx context.Context, ref domain.StoredReference) error
}

// GeneratedFileQueue delivers generated-file references to background workers.
type GeneratedFileQueue interface {
	ReferencePublisher
	SubscribeGeneratedFiles(ctx context.Context, handler func(context.Context, domain.StoredReference) error) error
}

// PipelineObserver receives pipeline measurements. Implementations must be safe
// for concurrent use.
type PipelineObserver interface {
	ObserveDecode(decoder string, duration time.Duration, err error)
	ObserveArchive(members int)
	ObservePreview(kind domain.PreviewKind, state domain.PreviewState)
	ObserveReissue(err error)
}
