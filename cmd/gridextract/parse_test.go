package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/gridextract/internal/tabular"
)

// TestNewParseCmd tests the parse command creation.
func TestNewParseCmd(t *testing.T) {
	t.Parallel()

	cmd := NewParseCmd()
	if cmd.Use != "parse [file]" {
		t.Errorf("expected use 'parse [file]', got %q", cmd.Use)
	}
	for _, name := range []string{"report", "common", "header", "schema", "utf8", "label", "format", "output"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

// TestRunParseCmd tests parsing saved exports.
func TestRunParseCmd(t *testing.T) {
	t.Parallel()

	t.Run("gbk export file", func(t *testing.T) {
		t.Parallel()

		raw, err := tabular.EncodeNative("证券代码\t股票余额\n600000\t100\n")
		if err != nil {
			t.Fatalf("failed to encode: %v", err)
		}
		path := filepath.Join(t.TempDir(), "orders.xls")
		if err := os.WriteFile(path, raw, 0600); err != nil {
			t.Fatalf("failed to write export: %v", err)
		}

		stdout, _, err := run(t, "parse", path, "--format", "tsv")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stdout != "证券代码\t股票余额\n600000\t100\n" {
			t.Errorf("unexpected output: %q", stdout)
		}
	})

	t.Run("report from stdin", func(t *testing.T) {
		t.Parallel()

		var stdout bytes.Buffer
		cmd := NewRootCmd()
		cmd.SetOut(&stdout)
		cmd.SetIn(strings.NewReader("资金账号\t可用金额\n1\t1000\n\n证券代码\t数量\n600000\t100\n"))
		cmd.SetArgs([]string{"parse", "--report", "--utf8", "--schema", "数量=int", "--format", "json"})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var doc struct {
			Extractions []struct {
				Label  string `json:"label"`
				Result struct {
					Summary map[string]any   `json:"summary"`
					Records []map[string]any `json:"records"`
				} `json:"result"`
			} `json:"extractions"`
		}
		if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, stdout.String())
		}
		got := doc.Extractions[0]
		if got.Label != "stdin" {
			t.Errorf("expected label 'stdin', got %q", got.Label)
		}
		if got.Result.Summary["可用金额"] != "1000" {
			t.Errorf("unexpected summary: %v", got.Result.Summary)
		}
		if len(got.Result.Records) != 1 || got.Result.Records[0]["数量"] != float64(100) {
			t.Errorf("unexpected records: %v", got.Result.Records)
		}
	})

	t.Run("utf8 clipboard text with label", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "clip.txt")
		if err := os.WriteFile(path, []byte("代码\t数量\n600000\t100\n"), 0600); err != nil {
			t.Fatalf("failed to write input: %v", err)
		}

		stdout, _, err := run(t, "parse", "--utf8", "--label", "holdings", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"holdings", "Rows: 1", "600000"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, stdout)
			}
		}
	})

	t.Run("malformed report", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "short.xls")
		if err := os.WriteFile(path, []byte("A\tB\n"), 0600); err != nil {
			t.Fatalf("failed to write input: %v", err)
		}
		_, _, err := run(t, "parse", "--report", path)
		if err == nil || !strings.Contains(err.Error(), "short.xls") {
			t.Errorf("expected parse error naming the file, got %v", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, _, err := run(t, "parse", filepath.Join(t.TempDir(), "missing.xls"))
		if err == nil {
			t.Error("expected error for missing file")
		}
	})
}
