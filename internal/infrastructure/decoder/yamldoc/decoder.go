package yamldoc

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/assistant-files/internal/core/domain"
	"github.com/kirillkom/assistant-files/internal/infrastructure/decoder/plaintext"
)

// Decoder parses YAML files. Raw keeps the original text.
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
	if err := yaml.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &domain.AttachedDocument{
		Name:         file.Name,
		DeclaredType: file.DeclaredType,
		Raw:          text,
		Parsed:       parsed,
	}, nil
}
