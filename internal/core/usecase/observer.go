package usecase

import (
	"errors"
	"time"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

var (
	errNoFetcher    = errors.New("content fetcher is not configured")
	errNoRepository = errors.New("reference repository is not configured")
)

type noopObserver struct{}

func (noopObserver) ObserveDecode(string, time.Duration, error) {}
func (noopObserver) ObserveArchive(int) {}
func (noopObserver) ObservePreview(domain.PreviewKind, domain.PreviewState) {}
func (noopObserver) ObserveReissue(error) {}
