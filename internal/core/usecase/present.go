package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
)

type PresenterOptions struct {
	// BlobBaseURL prefixes blob keys to build transient embed URLs.
	BlobBaseURL string
	Now         func() time.Time
}

type GeneratedFilePresenter struct {
	issuer      ports.AccessURLIssuer
	fetcher     ports.ContentFetcher
	blobs       ports.BlobStore
	observer    ports.PipelineObserver
	blobBaseURL string
	now         func() time.Time
}

func NewGeneratedFilePresenter(
	issuer ports.AccessURLIssuer,
	fetcher ports.ContentFetcher,
	blobs ports.BlobStore,
	observer ports.PipelineObserver,
	opts PresenterOptions,
) *GeneratedFilePresenter {
	if observer == nil {
		observer = noopObserver{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &GeneratedFilePresenter{
		issuer:      issuer,
		fetcher:     fetcher,
		blobs:       blobs,
		observer:    observer,
		blobBaseURL: opts.BlobBaseURL,
		now:         now,
	}
}

// Present resolves the access URL used for display and renders a preview.
// For images with a low-resolution variant only that variant is refreshed;
// the full-resolution URL is refreshed lazily by Download.
func (p *GeneratedFilePresenter) Present(ctx context.Context, ref domain.GeneratedFileReference) (domain.Preview, domain.GeneratedFileReference) {
	updated := ref
	lowRes := ref.HasLowRes()

	locator, url := ref.Values.FileKey, ref.Values.PresignedURL
	if lowRes {
		locator, url = ref.Values.FileKeyLowRes, ref.Values.PresignedURLLowRes
	}
	name := DisplayName(locator, ref.Type)

	stored := url
	url = p.resolveAccessURL(ctx, locator, name, url)
	if lowRes {
		updated.Values.PresignedURLLowRes = url
	} else {
		updated.Values.PresignedURL = url
	}

	var preview domain.Preview
	switch ref.Type.Essence() {
	case domain.MediaTypeCSV:
		preview = p.renderTable(ctx, name, url)
	case domain.MediaTypePDF:
		preview = p.renderDocument(ctx, name, url)
	case domain.MediaTypePNG:
		preview = domain.Preview{
			Kind:        domain.PreviewImage,
			State:       domain.PreviewReady,
			Download:    domain.DownloadLink{Name: name, URL: updated.Values.PresignedURL},
			InlineURL:   url,
			FailureText: domain.MessageImageUnavailable,
		}
	case domain.MediaTypeBinary, domain.MediaTypeOctetStream:
		preview = domain.Preview{
			Kind:     domain.PreviewBinary,
			State:    domain.PreviewReady,
			Download: domain.DownloadLink{Name: name, URL: url},
			Message:  domain.MessageBinary,
		}
	default:
		preview = domain.Preview{
			Kind:    domain.PreviewUnsupported,
			State:   domain.PreviewUnavailable,
			Message: domain.MessageUnsupported,
		}
	}

	if preview.Download.URL != "" {
		// Only the display URL is reissued per render; a full-resolution
		// target left behind, or a failed reissue, is flagged instead.
		if lowRes {
			preview.Download.NeedsRefresh = IsAccessURLExpired(preview.Download.URL, p.now())
		} else {
			preview.Download.NeedsRefresh = url == stored && IsAccessURLExpired(url, p.now())
		}
	}

	p.observer.ObservePreview(preview.Kind, preview.State)
	return preview, updated
}

// Download resolves the full-resolution access URL, refreshing it first when
// it has expired.
func (p *GeneratedFilePresenter) Download(ctx context.Context, ref domain.GeneratedFileReference) (domain.DownloadLink, domain.GeneratedFileReference) {
	updated := ref
	nameLocator := ref.Values.FileKey
	if ref.HasLowRes() {
		nameLocator = ref.Values.FileKeyLowRes
	}
	name := DisplayName(nameLocator, ref.Type)

	url := p.resolveAccessURL(ctx, ref.Values.FileKey, name, ref.Values.PresignedURL)
	updated.Values.PresignedURL = url
	return domain.DownloadLink{Name: name, URL: url}, updated
}

// resolveAccessURL returns url unless it has expired, in which case a fresh
// one is requested. Issuance failures fall back to the stale url.
func (p *GeneratedFilePresenter) resolveAccessURL(ctx context.Context, locator, name, url string) string {
	if !IsAccessURLExpired(url, p.now()) {
		return url
	}
	slog.Info("access_url_expired", "locator", locator)
	if p.issuer == nil {
		return url
	}

	fresh, err := p.issuer.IssueAccessURL(ctx, locator, name)
	p.observer.ObserveReissue(err)
	if err != nil {
		slog.Warn("access_url_reissue_failed", "locator", locator, "error", err)
		return url
	}
	if strings.TrimSpace(fresh) == "" {
		return url
	}
	return fresh
}

func (p *GeneratedFilePresenter) renderTable(ctx context.Context, name, url string) domain.Preview {
	preview := domain.Preview{
		Kind:     domain.PreviewTable,
		Download: domain.DownloadLink{Name: name, URL: url},
	}

	content, err := p.fetchText(ctx, url)
	if err != nil {
		slog.Warn("preview_fetch_failed", "kind", string(domain.PreviewTable), "error", err)
		preview.State = domain.PreviewUnavailable
		preview.Message = domain.MessageTableUnavailable
		return preview
	}

	lines, overflow := TruncateLines(content, domain.CSVPreviewMaxLines)
	preview.State = domain.PreviewReady
	preview.Lines = lines
	preview.Rows = SplitCells(lines)
	preview.Overflow = overflow
	if overflow {
		preview.Message = domain.MessageTableOverflow
	}
	return preview
}

func (p *GeneratedFilePresenter) renderDocument(ctx context.Context, name, url string) domain.Preview {
	preview := domain.Preview{
		Kind:     domain.PreviewDocument,
		Download: domain.DownloadLink{Name: name, URL: url},
	}

	embedURL, err := p.embedDocument(ctx, name, url)
	if err != nil {
		slog.Warn("preview_fetch_failed", "kind", string(domain.PreviewDocument), "error", err)
		preview.State = domain.PreviewUnavailable
		preview.Message = domain.MessageDocumentUnavailable
		return preview
	}
	preview.State = domain.PreviewReady
	preview.EmbedURL = embedURL
	return preview
}

// embedDocument copies the remote content into the blob store and returns a
// local URL for it. Blobs are left for the store's own lifecycle to clean up.
func (p *GeneratedFilePresenter) embedDocument(ctx context.Context, name, url string) (string, error) {
	if p.fetcher == nil {
		return "", domain.WrapError(domain.ErrTemporary, "fetch document", errNoFetcher)
	}
	data, err := p.fetcher.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}
	if p.blobs == nil {
		return "data:" + string(domain.MediaTypePDF) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}

	key := uuid.NewString() + "_" + sanitizeFilename(name)
	if err := p.blobs.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return p.blobBaseURL + key, nil
}

func (p *GeneratedFilePresenter) fetchText(ctx context.Context, url string) (string, error) {
	if p.fetcher == nil {
		return "", domain.WrapError(domain.ErrTemporary, "fetch text", errNoFetcher)
	}
	return p.fetcher.FetchText(ctx, url)
}

// TruncateLines splits content on newlines and keeps at most limit lines,
// appending the truncation marker when lines were dropped.
func TruncateLines(content string, limit int) ([]string, bool) {
	lines := strings.Split(content, "\n")
	if len(lines) <= limit {
		return lines, false
	}
	out := make([]string, 0, limit+1)
	out = append(out, lines[:limit]...)
	out = append(out, domain.CSVTruncationMarker)
	return out, true
}

// SplitCells turns preview lines into grid rows on plain commas.
func SplitCells(lines []string) [][]string {
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, strings.Split(line, ","))
	}
	return rows
}
