package model

import (
	"testing"
)

// TestFieldTypeString tests the configuration names of field types.
func TestFieldTypeString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		fieldType FieldType
		expected  string
	}{
		{FieldString, "str"},
		{FieldInt, "int"},
		{FieldFloat, "float"},
		{FieldBool, "bool"},
		{FieldType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if got := tc.fieldType.String(); got != tc.expected {
				t.Errorf("String() = %q, expected %q", got, tc.expected)
			}
		})
	}
}

// TestParseFieldType tests parsing of configuration type names.
func TestParseFieldType(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected FieldType
		wantErr  bool
	}{
		{"str", "str", FieldString, false},
		{"text alias", "text", FieldString, false},
		{"empty defaults to string", "", FieldString, false},
		{"int", "int", FieldInt, false},
		{"int64 alias upper case", "INT64", FieldInt, false},
		{"float64 alias", "float64", FieldFloat, false},
		{"bool", "bool", FieldBool, false},
		{"unknown", "decimal", FieldString, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseFieldType(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("ParseFieldType(%q) = %v, expected %v", tc.input, got, tc.expected)
			}
		})
	}
}

// TestFieldTypeCoerce tests conversion of cell text.
func TestFieldTypeCoerce(t *testing.T) {
	t.Parallel()

	t.Run("empty cell stays empty for every type", func(t *testing.T) {
		t.Parallel()
		for _, ft := range []FieldType{FieldString, FieldInt, FieldFloat, FieldBool} {
			got, err := ft.Coerce("")
			if err != nil {
				t.Fatalf("%v: unexpected error: %v", ft, err)
			}
			if got != "" {
				t.Errorf("%v: expected empty string, got %#v", ft, got)
			}
		}
	})

	t.Run("int coercion applies only to declared columns", func(t *testing.T) {
		t.Parallel()
		got, err := FieldInt.Coerce("000100")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != int64(100) {
			t.Errorf("expected int64(100), got %#v", got)
		}

		str, err := FieldString.Coerce("000100")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if str != "000100" {
			t.Errorf("expected \"000100\", got %#v", str)
		}
	})

	t.Run("float", func(t *testing.T) {
		t.Parallel()
		got, err := FieldFloat.Coerce(" 12.5 ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 12.5 {
			t.Errorf("expected 12.5, got %#v", got)
		}
	})

	t.Run("invalid int returns error", func(t *testing.T) {
		t.Parallel()
		if _, err := FieldInt.Coerce("abc"); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

// TestParseSchema tests building a schema from configuration.
func TestParseSchema(t *testing.T) {
	t.Parallel()

	t.Run("valid table", func(t *testing.T) {
		t.Parallel()

		schema, err := ParseSchema(map[string]string{
			"Qty":   "int",
			"Price": "float",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if schema.TypeOf("Qty") != FieldInt {
			t.Errorf("Qty: expected int, got %v", schema.TypeOf("Qty"))
		}
		if schema.TypeOf("Price") != FieldFloat {
			t.Errorf("Price: expected float, got %v", schema.TypeOf("Price"))
		}
		if schema.TypeOf("Code") != FieldString {
			t.Errorf("undeclared column should default to str, got %v", schema.TypeOf("Code"))
		}
	})

	t.Run("nil schema defaults to string", func(t *testing.T) {
		t.Parallel()
		var schema Schema
		if schema.TypeOf("anything") != FieldString {
			t.Error("expected str for nil schema")
		}
	})

	t.Run("unknown type name is rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := ParseSchema(map[string]string{"Qty": "money"}); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("padded column names are trimmed", func(t *testing.T) {
		t.Parallel()

		schema, err := ParseSchema(map[string]string{" 证券代码": "str", "股票余额 ": "int"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if schema.TypeOf("股票余额") != FieldInt {
			t.Errorf("expected int for trimmed name, got %v", schema.TypeOf("股票余额"))
		}
		if _, ok := schema[" 证券代码"]; ok {
			t.Error("expected padded key to be stored trimmed")
		}
	})

	t.Run("conflicting padded names are rejected", func(t *testing.T) {
		t.Parallel()
		if _, err := ParseSchema(map[string]string{"Qty": "int", " Qty": "float"}); err == nil {
			t.Error("expected error, got nil")
		}
	})
}
