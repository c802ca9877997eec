package tabular

import (
	"fmt"
	"strings"

	"github.com/nao1215/gridextract/internal/model"
)

// Line positions inside a multi-section report export.
const (
	summaryHeaderLine = 0
	summaryValuesLine = 1
	separatorLine     = 2
	detailHeaderLine  = 3
)

// escapeReplacer removes the ="..." wrapping the export applies to numeric
// cells so spreadsheet tools keep leading zeros.
var escapeReplacer = strings.NewReplacer("=", "", `"`, "")

// ParseMultiSection parses the lines of a multi-section report export.
//
// Line 0 is the summary header and line 1 the summary values; they are zipped
// into the summary record. Line 2 is a separator and is discarded. Line 3 is
// the detail header and every following line is a detail row zipped against it.
// Fields are split on tab and empty fields produced by adjacent delimiters are
// dropped before zipping.
func ParseMultiSection(lines []string) (model.Record, []model.Record, error) {
	if len(lines) <= summaryValuesLine {
		return model.Record{}, nil, fmt.Errorf("%w: report needs a summary header and values, got %d lines",
			ErrMalformedTable, len(lines))
	}

	var (
		summaryHeader []string
		summary       = model.NewRecord()
		detailHeader  []string
		details       = make([]model.Record, 0)
	)

	for i, line := range lines {
		fields := splitCleanFields(line)
		switch {
		case i == summaryHeaderLine:
			summaryHeader = fields
		case i == summaryValuesLine:
			summary = model.RecordFrom(summaryHeader, fields)
		case i == separatorLine:
			continue
		case i == detailHeaderLine:
			detailHeader = fields
		default:
			if !hasNonEmpty(fields) {
				continue
			}
			details = append(details, model.RecordFrom(detailHeader, fields))
		}
	}

	if !hasNonEmpty(summaryHeader) {
		return model.Record{}, nil, fmt.Errorf("%w: empty summary header", ErrMalformedTable)
	}
	return summary, details, nil
}

// ParseCommon parses a single-section export: line 0 is the header and every
// following line a row. Line cleaning matches ParseMultiSection.
func ParseCommon(lines []string) ([]model.Record, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: missing header line", ErrMalformedTable)
	}

	header := splitCleanFields(lines[0])
	if !hasNonEmpty(header) {
		return nil, fmt.Errorf("%w: empty header", ErrMalformedTable)
	}

	records := make([]model.Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		fields := splitCleanFields(line)
		if !hasNonEmpty(fields) {
			continue
		}
		records = append(records, model.RecordFrom(header, fields))
	}
	return records, nil
}

// ApplySchema coerces declared columns of already-parsed records in place.
// ParseMultiSection and ParseCommon keep every value as text; callers with a
// schema run this afterwards.
func ApplySchema(records []model.Record, schema model.Schema) error {
	if len(schema) == 0 {
		return nil
	}
	for i := range records {
		for _, column := range records[i].Columns() {
			ft := schema.TypeOf(column)
			if ft == model.FieldString {
				continue
			}
			value, err := ft.Coerce(records[i].String(column))
			if err != nil {
				return fmt.Errorf("%w: row %d column %q: %w", ErrMalformedTable, i+1, column, err)
			}
			records[i].Set(column, value)
		}
	}
	return nil
}

// SplitReportLines splits decoded export text into lines for ParseMultiSection.
// A trailing newline does not produce an extra empty line.
func SplitReportLines(text string) []string {
	lines := splitLines(text)
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// splitCleanFields strips the export escaping from a line, splits it on tab,
// drops the empty fields left by adjacent delimiters and trims the rest.
func splitCleanFields(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	line = escapeReplacer.Replace(line)

	raw := strings.Split(line, Delimiter)
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		if f == "" {
			continue
		}
		fields = append(fields, strings.TrimSpace(f))
	}
	return fields
}
