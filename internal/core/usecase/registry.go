package usecase

import (
	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/core/ports"
)

// DecoderBinding attaches a decoder to the declared media types it serves.
type DecoderBinding struct {
	Name    string
	Types   []domain.MediaType
	Decoder ports.Decoder
}

// DecoderRegistry is an immutable dispatch table from declared media type to
// decoder. Types without a binding resolve to the fallback decoder.
type DecoderRegistry struct {
	byType   map[domain.MediaType]DecoderBinding
	fallback DecoderBinding
}

func NewDecoderRegistry(fallback DecoderBinding, bindings ...DecoderBinding) *DecoderRegistry {
	byType := make(map[domain.MediaType]DecoderBinding)
	for _, binding := range bindings {
		for _, mediaType := range binding.Types {
			byType[mediaType.Essence()] = binding
		}
	}
	return &DecoderRegistry{
		byType:   byType,
		fallback: fallback,
	}
}

// Lookup returns the binding selected for a declared type. It never fails.
func (r *DecoderRegistry) Lookup(mediaType domain.MediaType) DecoderBinding {
	if binding, ok := r.byType[mediaType.Essence()]; ok {
		return binding
	}
	return r.fallback
}

// IsArchive reports whether the declared type is expanded instead of decoded.
func (r *DecoderRegistry) IsArchive(mediaType domain.MediaType) bool {
	return mediaType.IsArchive()
}
