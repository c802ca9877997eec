package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/gridextract/internal/model"
)

func positionEntry() Entry {
	summary := model.NewRecord()
	summary.Set("资金余额", "1000.00")
	summary.Set("可用资金", "800.00")

	row := func(code string, qty int64) model.Record {
		r := model.NewRecord()
		r.Set("证券代码", code)
		r.Set("股票余额", qty)
		return r
	}
	res := model.NewReportResult(summary, []model.Record{row("600000", 100), row("000001", 200)})
	res.Raw = []byte("raw export")

	return Entry{
		RunID:     "run-1",
		Label:     "position",
		Strategy:  "tdxxls",
		GridID:    1206,
		Outcome:   "ok",
		Attempts:  1,
		StartedAt: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
		Result:    res,
	}
}

func failedEntry() Entry {
	return Entry{
		Label:    "orders",
		Strategy: "copy",
		GridID:   1047,
		Outcome:  "captcha_unsolved",
		Error:    "captcha challenge unsolved after 5 attempts",
		Attempts: 3,
	}
}

// TestNewWriter tests writer selection by format.
func TestNewWriter(t *testing.T) {
	t.Parallel()

	for _, format := range append(Formats(), "") {
		if _, err := NewWriter(format, &bytes.Buffer{}); err != nil {
			t.Errorf("format %q: unexpected error: %v", format, err)
		}
	}

	if _, err := NewWriter("xml", &bytes.Buffer{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

// TestEntryTitle tests entry naming.
func TestEntryTitle(t *testing.T) {
	t.Parallel()

	if got := (Entry{Label: "position"}).Title(); got != "position" {
		t.Errorf("Title() = %q", got)
	}
	if got := (Entry{Strategy: "copy", GridID: 1047}).Title(); got != "copy #1047" {
		t.Errorf("Title() = %q", got)
	}
	if got := (Entry{}).Title(); got != "grid" {
		t.Errorf("Title() = %q", got)
	}
}

// TestSimpleWriter tests the text report.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("renders summary and table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write([]Entry{positionEntry()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		out := buf.String()
		for _, want := range []string{
			"position",
			"Strategy: tdxxls (grid 1206)",
			"Outcome:  ok in 1.5s",
			"资金余额: 1000.00",
			"Rows: 2",
			"证券代码",
			"600000",
			"200",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
		if strings.Contains(out, "raw export") {
			t.Error("expected raw payload to be hidden by default")
		}
	})

	t.Run("renders failures and totals", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write([]Entry{positionEntry(), failedEntry()}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := buf.String()
		for _, want := range []string{
			"Outcome:  captcha_unsolved after 3 attempts",
			"Error:    captcha challenge unsolved after 5 attempts",
			"2 extractions, 1 failed, 2 rows",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("limits rows and shows raw payload", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithMaxRows(1), WithShowRaw(true))
		if _, err := w.Write([]Entry{positionEntry()}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := buf.String()
		if strings.Contains(out, "000001") {
			t.Error("expected second row to be hidden")
		}
		if !strings.Contains(out, "... 1 more rows") {
			t.Errorf("expected hidden row count, got:\n%s", out)
		}
		if !strings.Contains(out, "raw export") {
			t.Error("expected raw payload")
		}
	})
}

// TestJSONWriter tests the JSON report.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewJSONWriter(&buf).Write([]Entry{positionEntry(), failedEntry()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var doc struct {
		Extractions []struct {
			Label           string  `json:"label"`
			Outcome         string  `json:"outcome"`
			Error           string  `json:"error"`
			DurationSeconds float64 `json:"duration_seconds"`
			Result          *struct {
				Summary map[string]any   `json:"summary"`
				Records []map[string]any `json:"records"`
			} `json:"result"`
		} `json:"extractions"`
		Total  int `json:"total"`
		Failed int `json:"failed"`
		Rows   int `json:"rows"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}

	if doc.Total != 2 || doc.Failed != 1 || doc.Rows != 2 {
		t.Errorf("unexpected totals: %+v", doc)
	}
	first := doc.Extractions[0]
	if first.DurationSeconds != 1.5 || first.Result == nil {
		t.Fatalf("unexpected first extraction: %+v", first)
	}
	if first.Result.Summary["可用资金"] != "800.00" {
		t.Errorf("unexpected summary: %v", first.Result.Summary)
	}
	if first.Result.Records[1]["股票余额"] != float64(200) {
		t.Errorf("unexpected record: %v", first.Result.Records[1])
	}
	if doc.Extractions[1].Result != nil || doc.Extractions[1].Error == "" {
		t.Errorf("unexpected failed extraction: %+v", doc.Extractions[1])
	}
	if strings.Contains(buf.String(), "raw export") {
		t.Error("expected raw payload to be omitted")
	}
}

// TestMarkdownWriter tests the Markdown report.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("mixed outcomes", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write([]Entry{positionEntry(), failedEntry()}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := buf.String()
		for _, want := range []string{
			"# Grid Extraction Report",
			"## Overview",
			"| position | tdxxls | 1206 | OK | 2 | 1 | 1.5s |",
			"```mermaid",
			"Captcha Unsolved",
			"[!CAUTION]",
			"## position",
			"### Summary",
			"| 资金余额 | 1000.00 |",
			"| 600000 | 100 |",
			"## orders",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("all ok", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write([]Entry{positionEntry()}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := buf.String()
		if !strings.Contains(out, "[!TIP]") {
			t.Errorf("expected tip alert, got:\n%s", out)
		}
		if strings.Contains(out, "```mermaid") {
			t.Error("expected no chart for a single outcome")
		}
	})

	t.Run("escapes pipes", func(t *testing.T) {
		t.Parallel()

		rec := model.NewRecord()
		rec.Set("备注", "a|b")
		e := Entry{Label: "notes", Outcome: "ok", Result: model.NewResult([]model.Record{rec})}

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write([]Entry{e}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `a\|b`) {
			t.Errorf("expected escaped pipe, got:\n%s", buf.String())
		}
	})
}

// TestTSVWriter tests the tab-separated output.
func TestTSVWriter(t *testing.T) {
	t.Parallel()

	t.Run("summary block precedes details", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewTSVWriter(&buf).Write([]Entry{positionEntry(), failedEntry()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := "资金余额\t可用资金\n" +
			"1000.00\t800.00\n" +
			"\n" +
			"证券代码\t股票余额\n" +
			"600000\t100\n" +
			"000001\t200\n"
		if buf.String() != want {
			t.Errorf("unexpected output:\n%q\nwant:\n%q", buf.String(), want)
		}
		if n != len(want) {
			t.Errorf("reported %d bytes, expected %d", n, len(want))
		}
	})

	t.Run("grids are separated by a blank line", func(t *testing.T) {
		t.Parallel()

		rec := model.NewRecord()
		rec.Set("a", "1")
		simple := Entry{Outcome: "ok", Result: model.NewResult([]model.Record{rec})}

		var buf bytes.Buffer
		if _, err := NewTSVWriter(&buf).Write([]Entry{simple, simple}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.String() != "a\n1\n\na\n1\n" {
			t.Errorf("unexpected output: %q", buf.String())
		}
	})
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, tsv bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&text), NewTSVWriter(&tsv))

	n, err := mw.Write([]Entry{positionEntry()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != text.Len()+tsv.Len() {
		t.Errorf("reported %d bytes, wrote %d", n, text.Len()+tsv.Len())
	}
	if text.Len() == 0 || tsv.Len() == 0 {
		t.Error("expected both writers to receive output")
	}
}

// TestOutcomeTitle tests outcome label formatting.
func TestOutcomeTitle(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"ok":                    "OK",
		"captcha_unsolved":      "Captcha Unsolved",
		"clipboard_unavailable": "Clipboard Unavailable",
		"error":                 "Error",
	}
	for in, want := range tests {
		if got := outcomeTitle(in); got != want {
			t.Errorf("outcomeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
