package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/gridextract/internal/model"
	"github.com/nao1215/gridextract/internal/pipeline"
	"github.com/nao1215/gridextract/internal/report"
	"github.com/nao1215/gridextract/internal/strategy"
	"github.com/nao1215/gridextract/internal/tabular"
	"github.com/spf13/cobra"
)

// NewParseCmd creates the parse command.
func NewParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a saved grid export or clipboard dump",
		Long: `Parse reads grid text that was saved earlier and reports the rows.

Without --report the input is a grid export: a workbook, or tab-delimited
text in the client's GBK code page. With --report the input is a report
export with a summary block followed by details.

Reads standard input when no file is given or the file is "-".

Examples:
  # Parse a saved grid export
  gridextract parse orders.xls

  # Parse a position report and type two columns
  gridextract parse --report --schema 股票余额=int,成本价=float position.xls

  # Parse UTF-8 clipboard text from a pipe
  pbpaste | gridextract parse --utf8 --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runParseCmd,
	}

	cmd.Flags().Bool("report", false,
		"Input is a report export (summary block followed by details)")
	cmd.Flags().Bool("common", false,
		"With --report, read a single table instead of summary and details")
	cmd.Flags().StringSlice("header", nil,
		"With --report, replace the detail header")
	cmd.Flags().StringToString("schema", nil,
		"Column types as column=type (str, int, float, bool)")
	cmd.Flags().Bool("utf8", false,
		"Input text is UTF-8 instead of GBK")
	cmd.Flags().String("label", "",
		"Label shown in the report (default: file name)")
	cmd.Flags().String("format", report.FormatText,
		"Report format: "+strings.Join(report.Formats(), ", "))
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// parseOptions holds the parse command flags.
type parseOptions struct {
	report bool
	common bool
	utf8   bool
	header []string
	schema model.Schema
}

// runParseCmd executes the parse command.
func runParseCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	var (
		opts parseOptions
		err  error
	)
	if opts.report, err = flags.GetBool("report"); err != nil {
		return err
	}
	if opts.common, err = flags.GetBool("common"); err != nil {
		return err
	}
	if opts.utf8, err = flags.GetBool("utf8"); err != nil {
		return err
	}
	if opts.header, err = flags.GetStringSlice("header"); err != nil {
		return err
	}
	rawSchema, err := flags.GetStringToString("schema")
	if err != nil {
		return err
	}
	if opts.schema, err = model.ParseSchema(rawSchema); err != nil {
		return fmt.Errorf("invalid --schema: %w", err)
	}
	label, err := flags.GetString("label")
	if err != nil {
		return err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return err
	}
	output, err := flags.GetString("output")
	if err != nil {
		return err
	}

	data, name, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	if label == "" {
		label = name
	}

	res, err := parseGrid(data, opts)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}

	entry := report.Entry{
		Label:   label,
		Outcome: pipeline.OutcomeOK,
		Result:  res,
	}
	return writeReport(format, output, cmd.OutOrStdout(), []report.Entry{entry})
}

// readInput reads the named file, or r when no file or "-" is given.
func readInput(r io.Reader, args []string) ([]byte, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read standard input: %w", err)
		}
		return data, "stdin", nil
	}

	data, err := os.ReadFile(args[0]) //nolint:gosec // User-provided input path is intentional
	if err != nil {
		return nil, "", fmt.Errorf("failed to read input: %w", err)
	}
	return data, filepath.Base(args[0]), nil
}

// parseGrid parses data the way the matching strategy parses what it
// extracted.
func parseGrid(data []byte, opts parseOptions) (*model.Result, error) {
	if opts.report {
		if opts.utf8 {
			native, err := tabular.EncodeNative(string(data))
			if err != nil {
				return nil, fmt.Errorf("input holds text the client code page cannot represent: %w", err)
			}
			data = native
		}
		return strategy.ParseReport(data,
			strategy.WithReportMode(!opts.common),
			strategy.WithHeader(opts.header),
			strategy.WithSchema(opts.schema),
		)
	}

	var (
		records []model.Record
		err     error
	)
	if opts.utf8 {
		records, err = tabular.ParseSimple(string(data), opts.schema)
	} else {
		records, err = tabular.ParseExport(data, opts.schema)
	}
	if err != nil {
		return nil, err
	}
	res := model.NewResult(records)
	res.Raw = data
	return res, nil
}
