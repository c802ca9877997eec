// Package report renders extraction results.
//
// Four formats are available: a human-readable text report for terminals,
// JSON for tools, Markdown for sharing, and TSV that restores the grid in
// the same tab-separated shape the client puts on the clipboard. Writers
// take a slice of Entry values so that live runs, stored history and
// locally parsed files all render the same way.
package report
