// Package main provides the entry point for the gridextract CLI.
//
// gridextract reads the data grids of a desktop trading client by copying
// them to the clipboard or exporting them to a file, solving the captcha
// dialog the client raises on copies, and reports the rows as text, JSON,
// Markdown or TSV.
//
// Usage:
//
//	gridextract extract --fixture client.yaml --grid 1047:orders
//	gridextract parse export.xls
//	gridextract history list
//
// See --help for all available options.
package main

// main is the entry point for gridextract.
func main() {
	Execute()
}
