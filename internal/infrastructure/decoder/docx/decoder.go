package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

const documentPart = "word/document.xml"

var errDocumentPartMissing = errors.New(documentPart + " not found in archive")

// Decoder extracts the raw text of word-processor documents. Every top-level
// paragraph is followed by a blank line; tabs and breaks inside runs are kept.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(ctx context.Context, file domain.SourceFile) (*domain.AttachedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	archive, err := zip.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}

	var part *zip.File
	for _, f := range archive.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return nil, errDocumentPartMissing
	}

	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", documentPart, err)
	}
	defer rc.Close()

	text, err := extractText(rc)
	if err != nil {
		return nil, err
	}
	return &domain.AttachedDocument{
		Name:         file.Name,
		DeclaredType: file.DeclaredType,
		Raw:          text,
		Parsed:       text,
	}, nil
}

// Namespaces whose elements carry document text. Drawing text (a:t, a:p)
// lives elsewhere and is ignored.
var wordNamespaces = map[string]bool{
	"http://schemas.openxmlformats.org/wordprocessingml/2006/main": true,
	"http://purl.oclc.org/ooxml/wordprocessingml/main":             true,
}

// Alternate content repeats text boxes in its fallback branch.
const markupCompatibilityNS = "http://schemas.openxmlformats.org/markup-compatibility/2006"

// extractText walks the body keeping a stack of open paragraphs. A paragraph
// nested in a text box is written on its own line inside the enclosing
// paragraph, which then carries on.
func extractText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var (
		out        strings.Builder
		paragraphs []*strings.Builder
		inText     bool
	)
	current := func() *strings.Builder {
		if len(paragraphs) == 0 {
			return nil
		}
		return paragraphs[len(paragraphs)-1]
	}

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", documentPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space == markupCompatibilityNS && t.Name.Local == "Fallback" {
				if err := decoder.Skip(); err != nil {
					return "", fmt.Errorf("parse %s: %w", documentPart, err)
				}
				continue
			}
			if !wordNamespaces[t.Name.Space] {
				continue
			}
			switch t.Name.Local {
			case "pPr":
				// Properties hold tab stop definitions, not content.
				if err := decoder.Skip(); err != nil {
					return "", fmt.Errorf("parse %s: %w", documentPart, err)
				}
			case "p":
				paragraphs = append(paragraphs, &strings.Builder{})
			case "t":
				inText = true
			case "tab":
				if p := current(); p != nil {
					p.WriteByte('\t')
				}
			case "br", "cr":
				if p := current(); p != nil {
					p.WriteByte('\n')
				}
			}
		case xml.CharData:
			if p := current(); p != nil && inText {
				p.Write(t)
			}
		case xml.EndElement:
			if !wordNamespaces[t.Name.Space] {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				p := current()
				if p == nil {
					continue
				}
				paragraphs = paragraphs[:len(paragraphs)-1]
				parent := current()
				if parent == nil {
					out.WriteString(p.String())
					out.WriteString("\n\n")
					continue
				}
				if parent.Len() > 0 && !strings.HasSuffix(parent.String(), "\n") {
					parent.WriteByte('\n')
				}
				parent.WriteString(p.String())
				parent.WriteByte('\n')
			}
		}
	}
	return out.String(), nil
}
