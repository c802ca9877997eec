package report

import (
	"encoding/json"
	"io"
)

// JSONWriter outputs entries as a JSON document for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// jsonEntry adds the duration in seconds to an Entry.
type jsonEntry struct {
	Entry
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// jsonDocument is the top-level JSON object.
type jsonDocument struct {
	Extractions []jsonEntry `json:"extractions"`
	Total       int         `json:"total"`
	Failed      int         `json:"failed"`
	Rows        int         `json:"rows"`
}

// Write renders entries as one JSON object.
func (w *JSONWriter) Write(entries []Entry) (int, error) {
	c := tally(entries)
	doc := jsonDocument{
		Extractions: make([]jsonEntry, len(entries)),
		Total:       len(entries),
		Failed:      c.failed(len(entries)),
		Rows:        c.rows,
	}
	for i, e := range entries {
		doc.Extractions[i] = jsonEntry{Entry: e, DurationSeconds: e.Duration.Seconds()}
	}

	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(doc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')

	return w.output.Write(data)
}
