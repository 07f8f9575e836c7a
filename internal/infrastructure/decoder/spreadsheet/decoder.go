package spreadsheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/assistant-files/internal/core/domain"
)

var errNoSheets = errors.New("workbook has no sheets")

// Decoder reads the rows of a workbook's first sheet. Rows are padded to the
// widest row so every row has the same number of cells.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(ctx context.Context, file domain.SourceFile) (*domain.AttachedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	book, err := excelize.OpenReader(bytes.NewReader(file.Data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errNoSheets
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	rows = padRows(rows)

	return &domain.AttachedDocument{
		Name:         file.Name,
		DeclaredType: file.DeclaredType,
		Raw:          rows,
		Parsed:       rows,
	}, nil
}

func padRows(rows [][]string) [][]string {
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		padded := make([]string, width)
		copy(padded, row)
		out[i] = padded
	}
	return out
}
