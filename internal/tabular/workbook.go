package tabular

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/nao1215/gridextract/internal/model"
	"github.com/xuri/excelize/v2"
)

// zipSignature starts every OOXML (.xlsx) workbook.
var zipSignature = []byte("PK\x03\x04")

// IsWorkbook reports whether export bytes are an OOXML workbook rather than
// the tab-delimited text the client normally writes under an .xls name.
func IsWorkbook(data []byte) bool {
	return bytes.HasPrefix(data, zipSignature)
}

// ParseWorkbook reads the first sheet of an OOXML workbook. Row 1 is the
// header; remaining rows are parsed exactly like ParseSimple rows.
func ParseWorkbook(data []byte, schema model.Schema) ([]model.Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %w", ErrMalformedTable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedTable)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %w", ErrMalformedTable, sheets[0], err)
	}

	// Re-join as text so the workbook goes through the same rules as clipboard data.
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, Delimiter))
		b.WriteByte('\n')
	}
	return ParseSimple(b.String(), schema)
}

// ParseExport parses the bytes of a "save as" export, choosing between the
// workbook reader and GBK-decoded tab-delimited text.
func ParseExport(data []byte, schema model.Schema) ([]model.Record, error) {
	if IsWorkbook(data) {
		return ParseWorkbook(data, schema)
	}
	return ParseSimple(DecodeNative(data), schema)
}
