package model

// Result is the outcome of one extraction.
// Simple grids only fill Records. Multi-section reports also carry the
// one-row summary block that precedes the detail table (for example the
// account balance above the holdings list).
type Result struct {
	// Summary is the leading summary record, or nil for simple grids.
	Summary *Record `json:"summary,omitempty"`

	// Records holds the detail rows in grid order.
	Records []Record `json:"records"`

	// Raw is the clipboard text or export file the rows were parsed from.
	Raw []byte `json:"-"`
}

// NewResult wraps a set of detail rows.
func NewResult(records []Record) *Result {
	if records == nil {
		records = []Record{}
	}
	return &Result{Records: records}
}

// NewReportResult wraps a summary record and its detail rows.
func NewReportResult(summary Record, records []Record) *Result {
	res := NewResult(records)
	res.Summary = &summary
	return res
}

// HasSummary reports whether the result came from a multi-section report.
func (r *Result) HasSummary() bool {
	return r != nil && r.Summary != nil
}

// Len returns the number of detail rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

// Empty reports whether the grid held no detail rows.
// An empty result is a successful extraction of an empty grid, never a
// failed one; failures are reported as errors.
func (r *Result) Empty() bool {
	return r.Len() == 0
}

// Header returns the column names of the first detail row.
func (r *Result) Header() []string {
	if r.Len() == 0 {
		return nil
	}
	return r.Records[0].Columns()
}
