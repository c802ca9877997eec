package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/gridextract/internal/captcha"
	"github.com/nao1215/gridextract/internal/config"
	"github.com/nao1215/gridextract/internal/database"
	"github.com/nao1215/gridextract/internal/report"
	"github.com/spf13/cobra"
)

// DefaultHistoryLimit is the number of runs history list shows.
const DefaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded extraction runs",
		Long: `History shows runs and captcha attempts recorded by 'gridextract extract'.

Examples:
  # List the latest runs
  gridextract history list

  # List failed runs of one grid
  gridextract history list --grid 1047 --outcome captcha_unsolved

  # Show the rows of a run
  gridextract history show 3f2a...

  # Show the latest successful export of a report
  gridextract history show --strategy tdxxls --grid 1206 --format markdown

  # Captcha solve rates per recognition engine
  gridextract history captcha`,
	}

	cmd.PersistentFlags().String("db-dir", "",
		"History database directory (default: XDG data dir)")

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryCaptchaCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryListCmd,
	}
	cmd.Flags().String("strategy", "", "Only runs of this strategy")
	cmd.Flags().Int("grid", 0, "Only runs of this grid id")
	cmd.Flags().String("outcome", "", "Only runs with this outcome")
	cmd.Flags().String("session", "", "Only runs of this session")
	cmd.Flags().IntP("limit", "n", DefaultHistoryLimit, "Maximum number of runs (0 for all)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a recorded run with its rows",
		Long: `Show renders a recorded run like 'gridextract extract' does.

Without a run id, the latest successful run of --strategy and --grid is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryShowCmd,
	}
	cmd.Flags().String("strategy", "", "Strategy of the latest run to show")
	cmd.Flags().Int("grid", 0, "Grid id of the latest run to show")
	cmd.Flags().String("format", report.FormatText,
		"Report format: "+strings.Join(report.Formats(), ", "))
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	return cmd
}

func newHistoryCaptchaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "captcha",
		Short: "Show captcha recognition statistics",
		Long: `Captcha shows the solve rate of each recognition engine.

With --session, every recorded attempt of that session is listed instead.`,
		Args: cobra.NoArgs,
		RunE: runHistoryCaptchaCmd,
	}
	cmd.Flags().String("session", "", "List the attempts of this session")
	return cmd
}

// openHistory opens the existing history database.
func openHistory(cmd *cobra.Command) (*database.HistoryDB, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if err != nil {
		return nil, fmt.Errorf("no history available (run 'gridextract extract' first): %w", err)
	}
	return db, nil
}

// runHistoryListCmd executes the history list command.
func runHistoryListCmd(cmd *cobra.Command, _ []string) error {
	var (
		filter database.RunFilter
		err    error
	)
	flags := cmd.Flags()
	if filter.Strategy, err = flags.GetString("strategy"); err != nil {
		return err
	}
	if filter.GridID, err = flags.GetInt("grid"); err != nil {
		return err
	}
	if filter.Outcome, err = flags.GetString("outcome"); err != nil {
		return err
	}
	if filter.SessionID, err = flags.GetString("session"); err != nil {
		return err
	}
	if filter.Limit, err = flags.GetInt("limit"); err != nil {
		return err
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(cmd.Context(), filter)
	if err != nil {
		return err
	}

	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

// printRuns writes runs as a fixed-width listing. The content column marks
// runs whose rows changed since the previous successful run of the same
// grid in the listing.
func printRuns(out io.Writer, runs []database.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		fmt.Fprintln(out, "\nUse 'gridextract extract' to extract grids.")
		return
	}

	fmt.Fprintf(out, "Extraction history (%d runs):\n\n", len(runs))
	fmt.Fprintf(out, "  %-36s  %-19s  %-12s  %-7s  %-6s  %-21s  %5s  %-8s\n",
		"Run", "Started", "Label", "Strat", "Grid", "Outcome", "Rows", "Content")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 130))

	for i, r := range runs {
		fmt.Fprintf(out, "  %-36s  %-19s  %-12s  %-7s  %-6d  %-21s  %5d  %-8s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			truncate(r.Label, 12),
			r.Strategy,
			r.GridID,
			r.Outcome,
			r.Rows,
			contentStatus(runs, i),
		)
	}

	fmt.Fprintln(out, "\nUse 'gridextract history show <run>' to see the rows of a run.")
}

// contentStatus compares the content hash of runs[i] with the next older
// run of the same strategy and grid that has one.
func contentStatus(runs []database.RunRecord, i int) string {
	r := runs[i]
	if r.ContentHash == "" {
		return "-"
	}
	for _, older := range runs[i+1:] {
		if older.Strategy != r.Strategy || older.GridID != r.GridID || older.ContentHash == "" {
			continue
		}
		if older.ContentHash == r.ContentHash {
			return "same"
		}
		return "changed"
	}
	return "new"
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "~"
}

// runHistoryShowCmd executes the history show command.
func runHistoryShowCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	strategyName, err := flags.GetString("strategy")
	if err != nil {
		return err
	}
	gridID, err := flags.GetInt("grid")
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
	if len(args) == 0 && (strategyName == "" || gridID == 0) {
		return errors.New("run id is required (or use --strategy and --grid for the latest successful run)")
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := findRun(cmd.Context(), db, args, strategyName, gridID)
	if err != nil {
		return err
	}
	return writeReport(format, output, cmd.OutOrStdout(), []report.Entry{entryFromRecord(rec)})
}

func findRun(ctx context.Context, db *database.HistoryDB, args []string, strategyName string, gridID int) (*database.RunRecord, error) {
	if len(args) > 0 {
		rec, err := db.GetRun(ctx, args[0])
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("run not found: %s", args[0])
		}
		return rec, nil
	}

	rec, err := db.LatestSuccess(ctx, strategyName, gridID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no successful %s run of grid %d recorded", strategyName, gridID)
	}
	return rec, nil
}

// runHistoryCaptchaCmd executes the history captcha command.
func runHistoryCaptchaCmd(cmd *cobra.Command, _ []string) error {
	sessionID, err := cmd.Flags().GetString("session")
	if err != nil {
		return err
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if sessionID != "" {
		attempts, err := db.ListCaptchaAttempts(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		printCaptchaAttempts(out, sessionID, attempts)
		return nil
	}

	stats, err := db.GetCaptchaStats(cmd.Context(), string(captcha.OutcomeDismissed))
	if err != nil {
		return err
	}
	printCaptchaStats(out, stats)
	return nil
}

func printCaptchaStats(out io.Writer, stats []database.CaptchaStats) {
	if len(stats) == 0 {
		fmt.Fprintln(out, "No captcha attempts recorded.")
		return
	}

	fmt.Fprintf(out, "  %-12s  %8s  %9s  %10s\n", "Engine", "Attempts", "Dismissed", "Solve rate")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 46))
	for _, s := range stats {
		fmt.Fprintf(out, "  %-12s  %8d  %9d  %9.1f%%\n",
			orUnknown(s.Engine), s.Attempts, s.Dismissed, s.SolveRate()*100)
	}
}

func printCaptchaAttempts(out io.Writer, sessionID string, attempts []database.CaptchaAttemptRecord) {
	if len(attempts) == 0 {
		fmt.Fprintf(out, "No captcha attempts recorded for session %s.\n", sessionID)
		return
	}

	fmt.Fprintf(out, "Captcha attempts of session %s (%d):\n\n", sessionID, len(attempts))
	fmt.Fprintf(out, "  %-19s  %-7s  %-12s  %-6s  %-16s  %s\n",
		"Time", "Attempt", "Engine", "Code", "Outcome", "Error")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 80))
	for _, a := range attempts {
		fmt.Fprintf(out, "  %-19s  %-7s  %-12s  %-6s  %-16s  %s\n",
			a.Timestamp.Local().Format(time.DateTime),
			strconv.Itoa(a.Attempt)+"/"+strconv.Itoa(a.MaxAttempts),
			orUnknown(a.Engine),
			orDash(a.Code),
			a.Outcome,
			a.Error,
		)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
