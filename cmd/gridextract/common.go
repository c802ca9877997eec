package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nao1215/gridextract/internal/database"
	securelog "github.com/nao1215/gridextract/internal/log"
	"github.com/nao1215/gridextract/internal/pipeline"
	"github.com/nao1215/gridextract/internal/report"
	"github.com/spf13/cobra"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getLogJSONFlag retrieves the log-json flag from the command or its parent.
func getLogJSONFlag(cmd *cobra.Command) bool {
	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		logJSON, err = cmd.Root().PersistentFlags().GetBool("log-json")
		if err != nil {
			return false
		}
	}
	return logJSON
}

// setupLogger creates a structured logger on w that masks recognition
// service credentials.
func setupLogger(w io.Writer, verbose, logJSON bool) *slog.Logger {
	if logJSON {
		return securelog.NewSecureJSONLogger(w, verbose)
	}
	return securelog.NewSecureLogger(w, verbose)
}

// openOutput returns the report destination: the file at path, or stdout
// when path is empty. The returned close function is always non-nil.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Extracted grids hold account data that should only be readable by the owner.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// writeReport renders entries in format to path or stdout.
func writeReport(format, path string, stdout io.Writer, entries []report.Entry) error {
	out, closeOut, err := openOutput(path, stdout)
	if err != nil {
		return err
	}

	w, err := report.NewWriter(format, out)
	if err != nil {
		_ = closeOut()
		return err
	}
	if _, err := w.Write(entries); err != nil {
		_ = closeOut()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return closeOut()
}

// entryFromRun converts a finished run to a report entry.
func entryFromRun(run *pipeline.Run) report.Entry {
	e := report.Entry{
		RunID:     run.ID,
		Label:     run.Job.Label,
		Strategy:  run.Job.Strategy,
		GridID:    run.Job.GridID,
		Outcome:   run.Outcome(),
		Attempts:  run.Attempts,
		StartedAt: run.StartedAt,
		Duration:  run.Duration(),
		Result:    run.Result,
	}
	if run.Err != nil {
		e.Error = run.Err.Error()
		e.Result = nil
	}
	return e
}

// entryFromRecord converts a stored run to a report entry.
func entryFromRecord(rec *database.RunRecord) report.Entry {
	return report.Entry{
		RunID:     rec.ID,
		Label:     rec.Label,
		Strategy:  rec.Strategy,
		GridID:    rec.GridID,
		Outcome:   rec.Outcome,
		Error:     rec.Error,
		Attempts:  rec.Attempts,
		StartedAt: rec.StartedAt,
		Duration:  rec.Duration(),
		Result:    rec.Result,
	}
}
