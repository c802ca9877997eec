package tabular

import (
	"errors"
	"strings"
	"testing"

	"github.com/nao1215/gridextract/internal/model"
)

func rec(pairs ...string) model.Record {
	r := model.NewRecord()
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i], pairs[i+1])
	}
	return r
}

func assertRecords(t *testing.T, got, expected []model.Record) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("expected %d records, got %d: %v", len(expected), len(got), got)
	}
	for i := range expected {
		if !got[i].Equal(expected[i]) {
			t.Errorf("record %d: got %v, expected %v", i, got[i].Map(), expected[i].Map())
		}
	}
}

// TestParseSimple tests tab-delimited grid parsing.
func TestParseSimple(t *testing.T) {
	t.Parallel()

	t.Run("empty cells are preserved", func(t *testing.T) {
		t.Parallel()

		got, err := ParseSimple("A\tB\n1\t\nx\ty\n", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRecords(t, got, []model.Record{
			rec("A", "1", "B", ""),
			rec("A", "x", "B", "y"),
		})
	})

	t.Run("row of empty cells is kept", func(t *testing.T) {
		t.Parallel()

		got, err := ParseSimple("A\tB\n\t\nx\ty\n", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRecords(t, got, []model.Record{
			rec("A", "", "B", ""),
			rec("A", "x", "B", "y"),
		})
	})

	t.Run("padded header matches schema of a parsed config", func(t *testing.T) {
		t.Parallel()

		schema, err := model.ParseSchema(map[string]string{" Qty": "int"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := ParseSimple("Code\t Qty\n000001\t200\n", schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v, _ := got[0].Get("Qty"); v != int64(200) {
			t.Errorf("Qty: expected int64(200), got %#v", v)
		}
	})

	t.Run("declared columns are coerced", func(t *testing.T) {
		t.Parallel()

		schema := model.Schema{"Qty": model.FieldInt, "Price": model.FieldFloat}
		got, err := ParseSimple("Code\tQty\tPrice\n000001\t200\t10.25\n", schema)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 record, got %d", len(got))
		}
		if v, _ := got[0].Get("Code"); v != "000001" {
			t.Errorf("undeclared column should stay text, got %#v", v)
		}
		if v, _ := got[0].Get("Qty"); v != int64(200) {
			t.Errorf("Qty: expected int64(200), got %#v", v)
		}
		if v, _ := got[0].Get("Price"); v != 10.25 {
			t.Errorf("Price: expected 10.25, got %#v", v)
		}
	})

	t.Run("windows line endings and trailing blank lines", func(t *testing.T) {
		t.Parallel()

		got, err := ParseSimple("A\tB\r\n1\t2\r\n\r\n\r\n", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRecords(t, got, []model.Record{rec("A", "1", "B", "2")})
	})

	t.Run("short row gives partial record", func(t *testing.T) {
		t.Parallel()

		got, err := ParseSimple("A\tB\tC\n1\t2\n", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRecords(t, got, []model.Record{rec("A", "1", "B", "2")})
	})

	t.Run("trailing empty cells beyond header are tolerated", func(t *testing.T) {
		t.Parallel()

		got, err := ParseSimple("A\tB\n1\t2\t\t\n", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRecords(t, got, []model.Record{rec("A", "1", "B", "2")})
	})

	t.Run("header only yields no records", func(t *testing.T) {
		t.Parallel()

		got, err := ParseSimple("A\tB\n", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no records, got %d", len(got))
		}
	})

	t.Run("duplicate header names are disambiguated", func(t *testing.T) {
		t.Parallel()

		got, err := ParseSimple("A\tA\n1\t2\n", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertRecords(t, got, []model.Record{rec("A", "1", "A.1", "2")})
	})
}

// TestParseSimpleMalformed tests inputs that must fail with ErrMalformedTable.
func TestParseSimpleMalformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		input  string
		schema model.Schema
	}{
		{"empty input", "", nil},
		{"only newlines", "\n\n\r\n", nil},
		{"only whitespace", "   \n\t\n", nil},
		{"header of empty cells", "\t\t\n1\t2\n", nil},
		{"row wider than header", "A\tB\n1\t2\t3\n", nil},
		{"captcha dialog text", "验证码\n请输入验证码\t确定\t取消\n", nil},
		{"value does not fit declared type", "Qty\nabc\n", model.Schema{"Qty": model.FieldInt}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseSimple(tc.input, tc.schema)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrMalformedTable) {
				t.Errorf("expected ErrMalformedTable, got %v", err)
			}
		})
	}
}

// TestParseSimpleDeterministic tests that parsing is repeatable and that
// parsing serialized output reproduces the records.
func TestParseSimpleDeterministic(t *testing.T) {
	t.Parallel()

	inputs := []struct {
		text   string
		schema model.Schema
	}{
		{"A\tB\n1\t\nx\ty\n", nil},
		{"A\tB\n\t\nx\ty\n", nil},
		{"Code\tName\tQty\n600000\t浦发银行\t100\n000001\t平安银行\t\n", model.Schema{"Qty": model.FieldInt}},
		{"Price\tFlag\n1.5\ttrue\n-0.25\tfalse\n", model.Schema{"Price": model.FieldFloat, "Flag": model.FieldBool}},
		{"A\tB\tC\n1\n2\t3\n", nil},
	}

	for _, in := range inputs {
		first, err := ParseSimple(in.text, in.schema)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", in.text, err)
		}
		second, err := ParseSimple(in.text, in.schema)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", in.text, err)
		}
		assertRecords(t, second, first)

		cols := headerOf(t, in.text)
		again, err := ParseSimple(Serialize(cols, first), in.schema)
		if err != nil {
			t.Fatalf("re-parse of %q failed: %v", in.text, err)
		}
		assertRecords(t, again, first)
	}
}

func headerOf(t *testing.T, text string) []string {
	t.Helper()
	first := strings.SplitN(text, "\n", 2)[0]
	return dedupeColumns(strings.Split(first, Delimiter))
}
