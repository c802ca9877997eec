package tabular

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/gridextract/internal/model"
)

// Delimiter separates fields in every format the client produces.
const Delimiter = "\t"

// ParseSimple parses tab-delimited text whose first non-blank line is the header.
//
// Empty cells are preserved as "" rather than treated as missing. Columns
// declared in schema are coerced to their type; all others stay text. A row
// shorter than the header yields a partial record. A row with more non-empty
// fields than the header, an empty header, or a value that does not fit its
// declared type is reported as ErrMalformedTable.
//
// Header names are trimmed of surrounding whitespace, and repeated names
// become name.1, name.2 and so on. Schema keys refer to the trimmed names.
func ParseSimple(text string, schema model.Schema) ([]model.Record, error) {
	lines := splitLines(text)

	headerIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, fmt.Errorf("%w: missing header line", ErrMalformedTable)
	}

	header := dedupeColumns(strings.Split(lines[headerIdx], Delimiter))
	if !hasNonEmpty(header) {
		return nil, fmt.Errorf("%w: empty header", ErrMalformedTable)
	}

	records := make([]model.Record, 0, len(lines)-headerIdx-1)
	for n, line := range lines[headerIdx+1:] {
		// A line holding only delimiters is a row of empty cells.
		if !strings.Contains(line, Delimiter) && strings.TrimSpace(line) == "" {
			continue
		}
		rowNum := headerIdx + n + 2

		fields := strings.Split(line, Delimiter)
		if len(fields) > len(header) {
			if hasNonEmpty(fields[len(header):]) {
				return nil, fmt.Errorf("%w: expected %d fields in line %d, saw %d",
					ErrMalformedTable, len(header), rowNum, len(fields))
			}
			fields = fields[:len(header)]
		}

		record, err := buildRecord(header, fields, schema)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedTable, rowNum, err)
		}
		records = append(records, record)
	}

	return records, nil
}

// Serialize writes records back out as tab-delimited text with the given header.
// Parsing the output with ParseSimple and the same schema reproduces the records.
func Serialize(header []string, records []model.Record) string {
	var b strings.Builder
	b.WriteString(strings.Join(header, Delimiter))
	b.WriteByte('\n')
	for _, r := range records {
		fields := make([]string, 0, len(header))
		for _, column := range header {
			v, ok := r.Get(column)
			if !ok {
				break
			}
			fields = append(fields, formatValue(v))
		}
		b.WriteString(strings.Join(fields, Delimiter))
		b.WriteByte('\n')
	}
	return b.String()
}

// buildRecord zips a header with fields, coercing declared columns.
func buildRecord(header, fields []string, schema model.Schema) (model.Record, error) {
	record := model.NewRecord()
	for i, column := range header {
		if i >= len(fields) {
			break
		}
		value, err := schema.TypeOf(column).Coerce(fields[i])
		if err != nil {
			return model.Record{}, fmt.Errorf("column %q: %w", column, err)
		}
		record.Set(column, value)
	}
	return record, nil
}

// dedupeColumns renames repeated header names to name.1, name.2, ... so that
// no column silently overwrites another.
func dedupeColumns(header []string) []string {
	seen := make(map[string]int, len(header))
	out := make([]string, len(header))
	for i, column := range header {
		column = strings.TrimSpace(column)
		if n, ok := seen[column]; ok {
			seen[column] = n + 1
			out[i] = column + "." + strconv.Itoa(n+1)
			continue
		}
		seen[column] = 0
		out[i] = column
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

func hasNonEmpty(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return true
		}
	}
	return false
}
