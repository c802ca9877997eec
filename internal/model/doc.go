// Package model defines the data structures shared by the extraction layer.
//
// This package contains the following main types:
//   - Record: One row of a grid, an ordered column -> value mapping
//   - Result: The outcome of one extraction (detail rows plus optional summary)
//   - Schema: Per-column type overrides applied while parsing
//   - FieldType: The value types a column can be coerced to
//
// Models live in their own package because the parser, the strategies and the
// report writers all exchange them; keeping them here avoids import cycles.
//
// Records serialize to JSON with their column order preserved, which is what
// the history database and the JSON report store.
package model
