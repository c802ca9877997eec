package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nao1215/gridextract/internal/model"
)

// Output formats.
const (
	FormatText     = "text"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatTSV      = "tsv"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats returns every supported format name.
func Formats() []string {
	return []string{FormatText, FormatJSON, FormatMarkdown, FormatTSV}
}

// Entry is one extraction as shown in a report.
type Entry struct {
	RunID     string        `json:"run_id,omitempty"`
	Label     string        `json:"label,omitempty"`
	Strategy  string        `json:"strategy,omitempty"`
	GridID    int           `json:"grid_id,omitempty"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Duration  time.Duration `json:"-"`

	// Result is nil for failed extractions.
	Result *model.Result `json:"result,omitempty"`
}

// Title names the entry by its label, falling back to strategy and grid.
func (e Entry) Title() string {
	if e.Label != "" {
		return e.Label
	}
	if e.Strategy != "" {
		return fmt.Sprintf("%s #%d", e.Strategy, e.GridID)
	}
	return "grid"
}

// Failed reports whether the extraction produced no result.
func (e Entry) Failed() bool {
	return e.Result == nil
}

// Writer renders entries.
type Writer interface {
	// Write renders entries to the destination and returns the number of
	// bytes written.
	Write(entries []Entry) (int, error)
}

// NewWriter creates the writer for format.
func NewWriter(format string, output io.Writer) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatTSV:
		return NewTSVWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers in turn.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write renders entries with every writer, stopping at the first error.
func (m *MultiWriter) Write(entries []Entry) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(entries)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// counts tallies outcomes in entry order of first appearance.
type counts struct {
	order []string
	by    map[string]int
	rows  int
}

func tally(entries []Entry) counts {
	c := counts{by: make(map[string]int)}
	for _, e := range entries {
		if _, ok := c.by[e.Outcome]; !ok {
			c.order = append(c.order, e.Outcome)
		}
		c.by[e.Outcome]++
		c.rows += e.Result.Len()
	}
	return c
}

func (c counts) failed(total int) int {
	return total - c.by["ok"]
}
