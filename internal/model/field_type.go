package model

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldType is the type a grid column is coerced to while parsing.
// Columns not mentioned in a Schema are always FieldString.
type FieldType int

const (
	// FieldString keeps the cell text as-is. This is the default.
	FieldString FieldType = iota

	// FieldInt parses the cell as a base-10 int64.
	FieldInt

	// FieldFloat parses the cell as a float64.
	FieldFloat

	// FieldBool parses the cell with strconv.ParseBool.
	FieldBool
)

// String returns the configuration name of the field type.
func (f FieldType) String() string {
	switch f {
	case FieldString:
		return "str"
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a configuration name into a FieldType.
// Names are case-insensitive; "text", "int64" and "float64" are accepted as aliases.
func ParseFieldType(name string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "str", "string", "text", "":
		return FieldString, nil
	case "int", "int64":
		return FieldInt, nil
	case "float", "float64":
		return FieldFloat, nil
	case "bool":
		return FieldBool, nil
	default:
		return FieldString, fmt.Errorf("unknown field type %q", name)
	}
}

// Coerce converts raw cell text into a value of this type.
// Empty text is never coerced: it is returned as "" whatever the type, so an
// empty cell stays distinguishable from a zero value.
func (f FieldType) Coerce(raw string) (any, error) {
	if raw == "" {
		return "", nil
	}
	switch f {
	case FieldInt:
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case FieldFloat:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case FieldBool:
		return strconv.ParseBool(strings.TrimSpace(raw))
	default:
		return raw, nil
	}
}

// Schema maps column names to the type their values are coerced to.
// It corresponds to the per-field override table in the configuration file.
// Keys are header names trimmed of surrounding whitespace, as the parsers
// produce them.
type Schema map[string]FieldType

// TypeOf returns the declared type for a column, or FieldString when the
// column is not declared.
func (s Schema) TypeOf(column string) FieldType {
	if s == nil {
		return FieldString
	}
	if t, ok := s[column]; ok {
		return t
	}
	return FieldString
}

// ParseSchema builds a Schema from the name -> type-name table found in the
// configuration file. Column names are trimmed so that a name copied with
// the client's padding still matches the parsed header.
func ParseSchema(raw map[string]string) (Schema, error) {
	schema := make(Schema, len(raw))
	for column, name := range raw {
		t, err := ParseFieldType(name)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", column, err)
		}
		key := strings.TrimSpace(column)
		if prev, ok := schema[key]; ok && prev != t {
			return nil, fmt.Errorf("column %q: declared as both %s and %s", key, prev, t)
		}
		schema[key] = t
	}
	return schema, nil
}
