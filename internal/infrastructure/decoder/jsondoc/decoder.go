package jsondoc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/plaintext"
)

// Decoder parses JSON files. Raw keeps the original text.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(ctx context.Context, file domain.SourceFile) (*domain.AttachedDocument, error) {
	text, err := plaintext.ReadText(ctx, file)
	if err != nil {
		return nil, err
	}
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &domain.AttachedDocument{
		Name:         file.Name,
		DeclaredType: file.DeclaredType,
		Raw:          text,
		Parsed:       parsed,
	}, nil
}
