package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

// Decoder extracts page text from PDF documents.
//
// Raw is the concatenation of every page's text; Parsed is the per-page text
// in page order. Within a page, text rows are joined by a single space.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(ctx context.Context, file domain.SourceFile) (doc *domain.AttachedDocument, err error) {
	// The reader panics on some malformed documents.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("read pdf %s: %v", file.Name, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	var all strings.Builder
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(reader.Page(i))
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		pages = append(pages, text)
		all.WriteString(text)
	}

	return &domain.AttachedDocument{
		Name:         file.Name,
		DeclaredType: file.DeclaredType,
		Raw:          all.String(),
		Parsed:       pages,
	}, nil
}

func pageText(page pdf.Page) (string, error) {
	if page.V.IsNull() {
		return "", nil
	}
	rows, err := page.GetTextByRow()
	if err != nil {
		return "", err
	}
	fragments := make([]string, 0, len(rows))
	for _, row := range rows {
		var line strings.Builder
		for _, text := range row.Content {
			line.WriteString(text.S)
		}
		fragments = append(fragments, line.String())
	}
	return strings.Join(fragments, " "), nil
}
