package spreadsheet

import (
	"context"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

func buildWorkbook(t *testing.T) []byte {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()

	cells := map[string]any{
		"A1": "region", "B1": "units", "C1": "note",
		"A2": "north", "B2": 12,
		"A3": "south", "B3": 7, "C3": "late",
	}
	for cell, value := range cells {
		if err := book.SetCellValue("Sheet1", cell, value); err != nil {
			t.Fatalf("set %s: %v", cell, err)
		}
	}
	if _, err := book.NewSheet("Ignored"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	if err := book.SetCellValue("Ignored", "A1", "hidden"); err != nil {
		t.Fatalf("set ignored: %v", err)
	}

	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeReadsFirstSheetRows(t *testing.T) {
	doc, err := NewDecoder().Decode(context.Background(), domain.SourceFile{
		Name:         "sales.xlsx",
		DeclaredType: domain.MediaTypeXlsx,
		Data:         buildWorkbook(t),
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := [][]string{
		{"region", "units", "note"},
		{"north", "12", ""},
		{"south", "7", "late"},
	}
	if !reflect.DeepEqual(doc.Parsed, want) {
		t.Fatalf("unexpected rows: %#v", doc.Parsed)
	}
	if !reflect.DeepEqual(doc.Raw, doc.Parsed) {
		t.Fatalf("expected raw to equal parsed")
	}
}

func TestDecodeRejectsNonWorkbook(t *testing.T) {
	if _, err := NewDecoder().Decode(context.Background(), domain.SourceFile{Name: "x.xlsx", Data: []byte("a,b\n1,2")}); err == nil {
		t.Fatalf("expected open error")
	}
}
