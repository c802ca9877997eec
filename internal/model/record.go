package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Record is one row of a grid: an ordered mapping from column name to value.
// The column order is the order of the grid header, which Go maps do not keep,
// so the names are tracked separately from the values.
type Record struct {
	columns []string
	values  map[string]any
}

// NewRecord creates an empty record.
func NewRecord() Record {
	return Record{values: make(map[string]any)}
}

// RecordFrom zips a header with a row of string fields.
// A row shorter than the header produces a partial record; fields beyond the
// header are ignored.
func RecordFrom(header, fields []string) Record {
	r := NewRecord()
	for i, column := range header {
		if i >= len(fields) {
			break
		}
		r.Set(column, fields[i])
	}
	return r
}

// Set stores a value. A new column is appended after the existing ones; an
// existing column keeps its position.
func (r *Record) Set(column string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

// Get returns the value of a column and whether the column is present.
func (r Record) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// String returns the value of a column formatted as text, or "" if absent.
func (r Record) String(column string) string {
	v, ok := r.values[column]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Columns returns the column names in grid order.
func (r Record) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns in the record.
func (r Record) Len() int {
	return len(r.columns)
}

// Equal reports whether two records hold the same columns with equal values.
// Equality is field-wise; column order is not significant.
func (r Record) Equal(other Record) bool {
	if len(r.values) != len(other.values) {
		return false
	}
	for column, v := range r.values {
		ov, ok := other.values[column]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// Map returns a copy of the record as a plain map.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the record as a JSON object with keys in column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, column := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[column])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", column, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the input.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	*r = NewRecord()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected record key %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		if n, ok := value.(json.Number); ok {
			value = decodeNumber(n)
		}
		r.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

// decodeNumber restores the int64/float64 distinction the parser produced.
func decodeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
