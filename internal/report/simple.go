package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// SimpleWriter outputs human-readable text for terminal display. Detail
// rows are drawn as a bordered table.
type SimpleWriter struct {
	baseWriter

	// showRaw prints the raw clipboard text or export file after each table.
	showRaw bool

	// maxRows limits the rows printed per grid, 0 for all.
	maxRows int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowRaw prints the raw payload each result was parsed from.
func WithShowRaw(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showRaw = show
	}
}

// WithMaxRows limits the detail rows printed per grid.
func WithMaxRows(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.maxRows = n
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write renders entries as text.
func (w *SimpleWriter) Write(entries []Entry) (int, error) {
	var sb strings.Builder

	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		if err := w.writeEntry(&sb, e); err != nil {
			return 0, err
		}
	}

	if len(entries) > 1 {
		w.writeTotals(&sb, entries)
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeEntry(sb *strings.Builder, e Entry) error {
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(sb, "%s\n", e.Title())
	sb.WriteString(strings.Repeat("=", 60) + "\n")

	if e.Strategy != "" {
		fmt.Fprintf(sb, "Strategy: %s (grid %d)\n", e.Strategy, e.GridID)
	}
	fmt.Fprintf(sb, "Outcome:  %s", e.Outcome)
	if e.Attempts > 1 {
		fmt.Fprintf(sb, " after %d attempts", e.Attempts)
	}
	if e.Duration > 0 {
		fmt.Fprintf(sb, " in %s", e.Duration.Round(time.Millisecond))
	}
	sb.WriteString("\n")

	if e.Failed() {
		if e.Error != "" {
			fmt.Fprintf(sb, "Error:    %s\n", e.Error)
		}
		return nil
	}

	if e.Result.HasSummary() {
		sb.WriteString("\nSummary\n")
		for _, col := range e.Result.Summary.Columns() {
			fmt.Fprintf(sb, "  %s: %s\n", col, e.Result.Summary.String(col))
		}
	}

	fmt.Fprintf(sb, "\nRows: %d\n", e.Result.Len())
	if !e.Result.Empty() {
		if err := w.writeTable(sb, e); err != nil {
			return err
		}
	}

	if w.showRaw && len(e.Result.Raw) > 0 {
		sb.WriteString("\nRaw\n")
		sb.Write(e.Result.Raw)
		if !strings.HasSuffix(string(e.Result.Raw), "\n") {
			sb.WriteString("\n")
		}
	}
	return nil
}

func (w *SimpleWriter) writeTable(sb *strings.Builder, e Entry) error {
	header := e.Result.Header()
	table := tablewriter.NewTable(sb, tablewriter.WithHeaderAutoFormat(tw.Off))
	table.Header(header)

	records := e.Result.Records
	if w.maxRows > 0 && len(records) > w.maxRows {
		records = records[:w.maxRows]
	}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = rec.String(col)
		}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to add row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	if hidden := e.Result.Len() - len(records); hidden > 0 {
		fmt.Fprintf(sb, "... %d more rows\n", hidden)
	}
	return nil
}

func (w *SimpleWriter) writeTotals(sb *strings.Builder, entries []Entry) {
	c := tally(entries)
	sb.WriteString("\n" + strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(sb, "%d extractions, %d failed, %d rows\n", len(entries), c.failed(len(entries)), c.rows)
	for _, outcome := range c.order {
		fmt.Fprintf(sb, "  %-22s %d\n", outcome, c.by[outcome])
	}
}
