package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MarkdownWriter outputs GitHub-flavored Markdown: an overview table, an
// outcome chart and an alert, then one section per grid.
type MarkdownWriter struct {
	baseWriter

	// now stamps the report.
	now func() time.Time
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		now:        time.Now,
	}
}

// Write renders entries as Markdown.
func (w *MarkdownWriter) Write(entries []Entry) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, entries)
	w.writeOverview(md, entries)
	for _, e := range entries {
		w.writeEntry(md, e)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, entries []Entry) {
	c := tally(entries)

	md.H1("Grid Extraction Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", w.now().Format("2006-01-02 15:04:05 MST")},
			{"Extractions", strconv.Itoa(len(entries))},
			{"Failed", strconv.Itoa(c.failed(len(entries)))},
			{"Rows", strconv.Itoa(c.rows)},
		},
	})
	md.PlainText("")

	if len(c.order) > 1 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Outcomes"),
			piechart.WithShowData(true),
		)
		for _, outcome := range c.order {
			chart.LabelAndIntValue(outcomeTitle(outcome), uint64(c.by[outcome]))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch failed := c.failed(len(entries)); {
	case c.by["captcha_unsolved"] > 0:
		md.Cautionf("%d extraction(s) stopped at an unsolved captcha. The dialog was cancelled; retry once the client is idle.",
			c.by["captcha_unsolved"])
	case failed > 0:
		md.Warningf("%d of %d extraction(s) failed.", failed, len(entries))
	case len(entries) == 0:
		md.Note("Nothing was extracted.")
	default:
		md.Tip("All grids were extracted.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeOverview(md *markdown.Markdown, entries []Entry) {
	if len(entries) == 0 {
		return
	}

	md.H2("Overview")
	md.PlainText("")

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{
			escapeCell(e.Title()),
			orDash(e.Strategy),
			strconv.Itoa(e.GridID),
			outcomeTitle(e.Outcome),
			strconv.Itoa(e.Result.Len()),
			strconv.Itoa(e.Attempts),
			e.Duration.Round(time.Millisecond).String(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Grid", "Strategy", "ID", "Outcome", "Rows", "Attempts", "Duration"},
		Rows:   rows,
		Alignment: []markdown.TableAlignment{
			markdown.AlignLeft, markdown.AlignLeft, markdown.AlignRight, markdown.AlignLeft,
			markdown.AlignRight, markdown.AlignRight, markdown.AlignRight,
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeEntry(md *markdown.Markdown, e Entry) {
	md.H2(e.Title())
	md.PlainText("")

	if e.Failed() {
		md.Warningf("%s: %s", outcomeTitle(e.Outcome), orDash(e.Error))
		md.PlainText("")
		return
	}

	if e.Result.HasSummary() {
		md.H3("Summary")
		md.PlainText("")
		summary := e.Result.Summary
		rows := make([][]string, 0, summary.Len())
		for _, col := range summary.Columns() {
			rows = append(rows, []string{escapeCell(col), escapeCell(summary.String(col))})
		}
		md.Table(markdown.TableSet{Header: []string{"Field", "Value"}, Rows: rows})
		md.PlainText("")
		md.H3("Details")
		md.PlainText("")
	}

	if e.Result.Empty() {
		md.PlainText("The grid is empty.")
		md.PlainText("")
		return
	}

	header := e.Result.Header()
	cells := make([]string, len(header))
	for i, col := range header {
		cells[i] = escapeCell(col)
	}
	rows := make([][]string, e.Result.Len())
	for i, rec := range e.Result.Records {
		row := make([]string, len(header))
		for j, col := range header {
			row[j] = escapeCell(rec.String(col))
		}
		rows[i] = row
	}
	md.Table(markdown.TableSet{Header: cells, Rows: rows})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by gridextract*")
}

// outcomeTitle turns an outcome label such as "captcha_unsolved" into
// "Captcha Unsolved".
func outcomeTitle(outcome string) string {
	if outcome == "ok" {
		return "OK"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(outcome, "_", " "))
}

func escapeCell(s string) string {
	if s == "" {
		return "-"
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
