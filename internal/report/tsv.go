package report

import (
	"encoding/csv"
	"io"

	"github.com/nao1215/gridextract/internal/model"
)

// TSVWriter writes results back in the client's tab-separated layout:
// a header line followed by one line per record. A multi-section result
// writes its summary block first, followed by a blank line. Grids are
// separated by blank lines and failed extractions are skipped.
type TSVWriter struct {
	baseWriter
}

// NewTSVWriter creates a TSVWriter that outputs to the given writer.
func NewTSVWriter(output io.Writer) *TSVWriter {
	return &TSVWriter{baseWriter: newBaseWriter(output)}
}

// countingWriter counts bytes passed through it.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

// Write renders the results of entries as TSV.
func (w *TSVWriter) Write(entries []Entry) (int, error) {
	cw := &countingWriter{w: w.output}
	out := csv.NewWriter(cw)
	out.Comma = '\t'

	first := true
	blank := func() error {
		if first {
			first = false
			return nil
		}
		out.Flush()
		_, err := io.WriteString(cw, "\n")
		return err
	}

	for _, e := range entries {
		if e.Failed() {
			continue
		}
		if e.Result.HasSummary() {
			if err := blank(); err != nil {
				return cw.n, err
			}
			cols := e.Result.Summary.Columns()
			if err := writeRows(out, cols, *e.Result.Summary); err != nil {
				return cw.n, err
			}
		}
		if err := blank(); err != nil {
			return cw.n, err
		}
		if err := writeRows(out, e.Result.Header(), e.Result.Records...); err != nil {
			return cw.n, err
		}
	}

	out.Flush()
	return cw.n, out.Error()
}

func writeRows(out *csv.Writer, header []string, records ...model.Record) error {
	if len(header) == 0 {
		return nil
	}
	if err := out.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, rec := range records {
		for i, col := range header {
			row[i] = rec.String(col)
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}
	return nil
}
