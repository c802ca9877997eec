// Package tabular turns the raw output of the trading client's grid into records.
//
// The grid reaches us in three shapes:
//   - Clipboard text after a select-all + copy: tab-delimited, header first
//   - A "save as" export file: the same layout, encoded in the client's native
//     GBK code page
//   - A multi-section report export: a one-row summary block, a separator line,
//     then the detail table, with numeric cells escaped as ="123"
//
// ParseSimple handles the first two, ParseMultiSection and ParseCommon the
// third. DecodeNative converts export bytes to UTF-8, and ParseWorkbook reads
// the occasional client build that writes a genuine .xlsx workbook.
//
// All functions are pure; failures are reported as errors wrapping
// ErrMalformedTable.
package tabular
