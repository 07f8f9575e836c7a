package usecase

import (
	"context"
	"sync"

	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
)

// PreviewSlot is one place a reference is displayed. Every Render takes a new
// generation; a result is committed only if no newer render started meanwhile.
type PreviewSlot struct {
	service ports.GeneratedFileService

	mu        sync.Mutex
	latest    uint64
	committed uint64
	preview   domain.Preview
	reference domain.GeneratedFileReference
}

func NewPreviewSlot(service ports.GeneratedFileService) *PreviewSlot {
	return &PreviewSlot{service: service}
}

// Render presents ref and reports whether the result was committed. A false
// result means a newer render superseded this one and the output was discarded.
func (s *PreviewSlot) Render(ctx context.Context, ref domain.GeneratedFileReference) (domain.Preview, domain.GeneratedFileReference, bool) {
	s.mu.Lock()
	s.latest++
	generation := s.latest
	s.mu.Unlock()

	preview, updated := s.service.Present(ctx, ref)
	preview.Generation = generation

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.latest {
		return preview, updated, false
	}
	s.committed = generation
	s.preview = preview
	s.reference = updated
	return preview, updated, true
}

// Current returns the last committed preview and reference snapshot.
func (s *PreviewSlot) Current() (domain.Preview, domain.GeneratedFileReference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview, s.reference, s.committed > 0
}
