package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

// buildPDF writes a minimal document with one Helvetica text line per page.
func buildPDF(pages ...string) []byte {
	var objects []string
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+i*2)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+i*2),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestDecodeSegmentsPages(t *testing.T) {
	doc, err := NewDecoder().Decode(context.Background(), domain.SourceFile{
		Name:         "report.pdf",
		DeclaredType: domain.MediaTypePDF,
		Data:         buildPDF("Hello", "World"),
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	pages, ok := doc.Parsed.([]string)
	if !ok {
		t.Fatalf("expected []string pages, got %T", doc.Parsed)
	}
	if !reflect.DeepEqual(pages, []string{"Hello", "World"}) {
		t.Fatalf("unexpected pages: %q", pages)
	}
	if doc.Raw != "HelloWorld" {
		t.Fatalf("unexpected raw text: %q", doc.Raw)
	}
	if doc.Name != "report.pdf" || doc.DeclaredType != domain.MediaTypePDF {
		t.Fatalf("unexpected metadata: %+v", doc)
	}
}

func TestDecodeRejectsInvalidDocument(t *testing.T) {
	for name, data := range map[string][]byte{
		"garbage":   []byte("definitely not a pdf"),
		"truncated": buildPDF("Hello")[:40],
		"empty":     nil,
	} {
		t.Run(name, func(t *testing.T) {
			doc, err := NewDecoder().Decode(context.Background(), domain.SourceFile{Name: "bad.pdf", Data: data})
			if err == nil {
				t.Fatalf("expected decode error, got %+v", doc)
			}
			if doc != nil {
				t.Fatalf("expected no partial document")
			}
		})
	}
}
