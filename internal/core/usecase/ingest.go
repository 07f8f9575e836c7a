package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
)

const archiveDecoderName = "archive"

type IngestOptions struct {
	// MaxFileBytes rejects larger files and archive members. Zero disables the check.
	MaxFileBytes int64
	// ArchiveConcurrency bounds concurrent member decodes per archive.
	ArchiveConcurrency int
	// FileConcurrency bounds how many files of one AttachAll or IngestAll
	// call decode at once.
	FileConcurrency int
	// MaxArchiveDepth bounds archive nesting. Zero leaves it unbounded.
	MaxArchiveDepth int
}

func (o IngestOptions) normalize() IngestOptions {
	out := o
	if out.ArchiveConcurrency <= 0 {
		out.ArchiveConcurrency = 8
	}
	if out.FileConcurrency <= 0 {
		out.FileConcurrency = 4
	}
	if out.MaxFileBytes < 0 {
		out.MaxFileBytes = 0
	}
	if out.MaxArchiveDepth < 0 {
		out.MaxArchiveDepth = 0
	}
	return out
}

type AttachmentIngestor struct {
	registry *DecoderRegistry
	archives ports.ArchiveExpander
	observer ports.PipelineObserver
	opts     IngestOptions
}

func NewAttachmentIngestor(
	registry *DecoderRegistry,
	archives ports.ArchiveExpander,
	observer ports.PipelineObserver,
	opts IngestOptions,
) *AttachmentIngestor {
	if observer == nil {
		observer = noopObserver{}
	}
	return &AttachmentIngestor{
		registry: registry,
		archives: archives,
		observer: observer,
		opts:     opts.normalize(),
	}
}

// Ingest decodes one file. Archives yield their successful members in
// enumeration order; every other type yields exactly one document.
func (uc *AttachmentIngestor) Ingest(ctx context.Context, file domain.SourceFile) ([]domain.AttachedDocument, error) {
	if uc.registry.IsArchive(file.DeclaredType) {
		extraction, err := uc.ExtractArchive(ctx, file)
		if err != nil {
			return nil, err
		}
		return extraction.Documents(), nil
	}

	doc, err := uc.DecodeFile(ctx, file)
	if err != nil {
		return nil, err
	}
	return []domain.AttachedDocument{*doc}, nil
}

// Attach decodes one file and hands every resulting document to onAttach.
// A failure is logged and returned; nothing is delivered in that case.
func (uc *AttachmentIngestor) Attach(ctx context.Context, file domain.SourceFile, onAttach ports.AttachHandler) error {
	docs, err := uc.Ingest(ctx, file)
	if err != nil {
		slog.Warn("attachment_decode_failed",
			"name", file.Name,
			"type", string(file.DeclaredType),
			"error", err,
		)
		return err
	}
	for _, doc := range docs {
		if onAttach != nil {
			onAttach(doc)
		}
	}
	return nil
}

// AttachAll decodes files concurrently. Failed files are logged and reported
// back without affecting their siblings; onAttach calls never overlap.
func (uc *AttachmentIngestor) AttachAll(ctx context.Context, files []domain.SourceFile, onAttach ports.AttachHandler) []ports.AttachFailure {
	var deliverMu sync.Mutex
	return uc.attachEach(ctx, files, func(_ int, doc domain.AttachedDocument) {
		deliverMu.Lock()
		defer deliverMu.Unlock()
		if onAttach != nil {
			onAttach(doc)
		}
	})
}

// IngestAll decodes files concurrently like AttachAll but returns the
// documents in input order: every document of files[0] comes before any of
// files[1], whatever the completion order.
func (uc *AttachmentIngestor) IngestAll(ctx context.Context, files []domain.SourceFile) ([]domain.AttachedDocument, []ports.AttachFailure) {
	perFile := make([][]domain.AttachedDocument, len(files))
	// Each index is only written by the goroutine decoding that file.
	failures := uc.attachEach(ctx, files, func(i int, doc domain.AttachedDocument) {
		perFile[i] = append(perFile[i], doc)
	})

	docs := make([]domain.AttachedDocument, 0, len(files))
	for _, fileDocs := range perFile {
		docs = append(docs, fileDocs...)
	}
	return docs, failures
}

func (uc *AttachmentIngestor) attachEach(ctx context.Context, files []domain.SourceFile, onAttach func(i int, doc domain.AttachedDocument)) []ports.AttachFailure {
	var (
		failures = make([]error, len(files))
		group    errgroup.Group
	)
	group.SetLimit(uc.opts.FileConcurrency)

	for i, file := range files {
		group.Go(func() error {
			failures[i] = uc.Attach(ctx, file, func(doc domain.AttachedDocument) {
				onAttach(i, doc)
			})
			return nil
		})
	}
	_ = group.Wait()

	var out []ports.AttachFailure
	for i, err := range failures {
		if err != nil {
			out = append(out, ports.AttachFailure{Name: files[i].Name, Err: err})
		}
	}
	return out
}

// DecodeFile runs the decoder selected by the declared type. Archives are not
// expanded here; use ExtractArchive for those.
func (uc *AttachmentIngestor) DecodeFile(ctx context.Context, file domain.SourceFile) (*domain.AttachedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := uc.checkSize(file); err != nil {
		return nil, err
	}

	binding := uc.registry.Lookup(file.DeclaredType)
	start := time.Now()
	doc, err := binding.Decoder.Decode(ctx, file)
	uc.observer.ObserveDecode(binding.Name, time.Since(start), err)
	if err != nil {
		return nil, wrapDecodeError("decode "+binding.Name, err)
	}
	slog.Debug("attachment_decoded", "name", file.Name, "type", string(file.DeclaredType), "decoder", binding.Name)
	return doc, nil
}

// ExtractArchive expands an archive and decodes every member concurrently.
// Entries keep the archive's enumeration order regardless of completion order;
// a failed member becomes an entry carrying its error.
func (uc *AttachmentIngestor) ExtractArchive(ctx context.Context, file domain.SourceFile) (*domain.ArchiveExtraction, error) {
	return uc.extractArchive(ctx, file, 1)
}

func (uc *AttachmentIngestor) extractArchive(ctx context.Context, file domain.SourceFile, depth int) (*domain.ArchiveExtraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if uc.opts.MaxArchiveDepth > 0 && depth > uc.opts.MaxArchiveDepth {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract archive",
			fmt.Errorf("%s exceeds nesting depth %d", file.Name, uc.opts.MaxArchiveDepth))
	}
	if err := uc.checkSize(file); err != nil {
		return nil, err
	}
	if uc.archives == nil {
		return nil, domain.WrapError(domain.ErrUnsupportedType, "extract archive", fmt.Errorf("no archive expander configured"))
	}

	start := time.Now()
	members, err := uc.archives.Expand(ctx, file)
	uc.observer.ObserveDecode(archiveDecoderName, time.Since(start), err)
	if err != nil {
		return nil, wrapDecodeError("extract archive", err)
	}
	uc.observer.ObserveArchive(len(members))

	entries := make([]domain.ArchiveEntry, len(members))
	var group errgroup.Group
	group.SetLimit(uc.opts.ArchiveConcurrency)
	for i, member := range members {
		group.Go(func() error {
			entries[i] = uc.decodeMember(ctx, member, depth)
			return nil
		})
	}
	_ = group.Wait()

	return &domain.ArchiveExtraction{Name: file.Name, Entries: entries}, nil
}

func (uc *AttachmentIngestor) decodeMember(ctx context.Context, expanded domain.ArchiveMember, depth int) domain.ArchiveEntry {
	member := expanded.File
	entry := domain.ArchiveEntry{Path: member.Name}
	switch {
	case expanded.Err != nil:
		entry.Err = wrapDecodeError("read archive member", expanded.Err)
	case uc.registry.IsArchive(member.DeclaredType):
		entry.Nested, entry.Err = uc.extractArchive(ctx, member, depth+1)
	default:
		entry.Document, entry.Err = uc.DecodeFile(ctx, member)
	}
	if entry.Err != nil {
		slog.Warn("archive_member_decode_failed",
			"path", member.Name,
			"type", string(member.DeclaredType),
			"error", entry.Err,
		)
	}
	return entry
}

func (uc *AttachmentIngestor) checkSize(file domain.SourceFile) error {
	if uc.opts.MaxFileBytes > 0 && int64(len(file.Data)) > uc.opts.MaxFileBytes {
		return domain.WrapError(domain.ErrInvalidInput, "check size",
			fmt.Errorf("%s is %d bytes (max %d)", file.Name, len(file.Data), uc.opts.MaxFileBytes))
	}
	return nil
}

func wrapDecodeError(operation string, err error) error {
	for _, kind := range []error{domain.ErrInvalidInput, domain.ErrUnsupportedType, domain.ErrDecodeFailed} {
		if domain.IsKind(err, kind) {
			return err
		}
	}
	return domain.WrapError(domain.ErrDecodeFailed, operation, err)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "file.bin"
	}
	return base
}
