package ports

import (
	"context"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

// AttachHandler receives each decoded document, once per document.
type AttachHandler func(doc domain.AttachedDocument)

// AttachmentService is the inbound contract of the attachment pipeline.
type AttachmentService interface {
	Ingest(ctx context.Context, file domain.SourceFile) ([]domain.AttachedDocument, error)
	Attach(ctx context.Context, file domain.SourceFile, onAttach AttachHandler) error
	AttachAll(ctx context.Context, files []domain.SourceFile, onAttach AttachHandler) []AttachFailure
	IngestAll(ctx context.Context, files []domain.SourceFile) ([]domain.AttachedDocument, []AttachFailure)
}

// AttachFailure describes a dropped file in a multi-file attach.
type AttachFailure struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

// GeneratedFileService is the inbound contract of the generated-file presenter.
// Both operations return the updated reference snapshot for the caller to keep.
type GeneratedFileService interface {
	Present(ctx context.Context, ref domain.GeneratedFileReference) (domain.Preview, domain.GeneratedFileReference)
	Download(ctx context.Context, ref domain.GeneratedFileReference) (domain.DownloadLink, domain.GeneratedFileReference)
}
