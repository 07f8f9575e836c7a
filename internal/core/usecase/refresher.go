package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
)

// ReferenceRefresher renders stored references and persists the updated
// snapshots. Concurrent renders of one ID share a PreviewSlot, so only the
// newest render's snapshot is saved.
type ReferenceRefresher struct {
	service ports.GeneratedFileService
	repo    ports.ReferenceRepository

	mu    sync.Mutex
	slots map[string]*refresherSlot
}

type refresherSlot struct {
	slot   *PreviewSlot
	active int
}

func NewReferenceRefresher(service ports.GeneratedFileService, repo ports.ReferenceRepository) *ReferenceRefresher {
	return &ReferenceRefresher{
		service: service,
		repo:    repo,
		slots:   make(map[string]*refresherSlot),
	}
}

// Load returns the stored reference with the given ID.
func (r *ReferenceRefresher) Load(ctx context.Context, id string) (*domain.StoredReference, error) {
	if r.repo == nil {
		return nil, domain.WrapError(domain.ErrReferenceNotFound, "load reference", errNoRepository)
	}
	return r.repo.Get(ctx, id)
}

// Present renders ref. The snapshot is saved when it changed and no newer
// render of the same ID superseded this one.
func (r *ReferenceRefresher) Present(ctx context.Context, ref domain.StoredReference) (domain.Preview, domain.GeneratedFileReference, error) {
	if ref.ID == "" {
		preview, updated := r.service.Present(ctx, ref.Reference)
		return preview, updated, nil
	}

	slot := r.acquire(ref.ID)
	defer r.release(ref.ID)

	preview, updated, committed := slot.Render(ctx, ref.Reference)
	if !committed {
		slog.Debug("preview_superseded", "id", ref.ID, "generation", preview.Generation)
		return preview, updated, nil
	}
	return preview, updated, r.persist(ctx, ref, updated)
}

// Download resolves the full-resolution URL and saves a changed snapshot.
func (r *ReferenceRefresher) Download(ctx context.Context, ref domain.StoredReference) (domain.DownloadLink, domain.GeneratedFileReference, error) {
	link, updated := r.service.Download(ctx, ref.Reference)
	if ref.ID == "" {
		return link, updated, nil
	}
	return link, updated, r.persist(ctx, ref, updated)
}

func (r *ReferenceRefresher) persist(ctx context.Context, ref domain.StoredReference, updated domain.GeneratedFileReference) error {
	if r.repo == nil || updated == ref.Reference {
		return nil
	}
	if err := r.repo.Save(ctx, domain.StoredReference{ID: ref.ID, Reference: updated}); err != nil {
		slog.Warn("reference_save_failed", "id", ref.ID, "error", err)
		return err
	}
	return nil
}

func (r *ReferenceRefresher) acquire(id string) *PreviewSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.slots[id]
	if !ok {
		entry = &refresherSlot{slot: NewPreviewSlot(r.service)}
		r.slots[id] = entry
	}
	entry.active++
	return entry.slot
}

func (r *ReferenceRefresher) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.slots[id]
	if !ok {
		return
	}
	entry.active--
	if entry.active <= 0 {
		delete(r.slots, id)
	}
}
