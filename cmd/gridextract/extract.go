package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/nao1215/gridextract/internal/captcha"
	"github.com/nao1215/gridextract/internal/config"
	"github.com/nao1215/gridextract/internal/database"
	"github.com/nao1215/gridextract/internal/driver/replay"
	"github.com/nao1215/gridextract/internal/metrics"
	"github.com/nao1215/gridextract/internal/model"
	"github.com/nao1215/gridextract/internal/pipeline"
	"github.com/nao1215/gridextract/internal/recognize"
	"github.com/nao1215/gridextract/internal/report"
	"github.com/nao1215/gridextract/internal/session"
	"github.com/nao1215/gridextract/internal/strategy"
	"github.com/spf13/cobra"
)

// errExtractionFailed is returned when at least one grid was not extracted.
var errExtractionFailed = errors.New("extraction failed")

// NewExtractCmd creates the extract command.
func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract grids from the client",
		Long: `Extract reads one or more grids from each client session and reports the rows.

Grids are given as [strategy:]id[:label]. The id is the grid control id,
or the report export button id for tdxxls. Ids may be decimal or 0x hex.

Each --fixture replays a scripted client and becomes one session. Grids of
one session are extracted one after another; sessions run in parallel.

Examples:
  # Copy one grid through the clipboard
  gridextract extract --fixture client.yaml --grid 1047:orders

  # Export a position report and a plain grid, as Markdown
  gridextract extract -f client.yaml -g tdxxls:1206:position -g 1047 --format markdown

  # Use the grids and settings of a configuration file
  gridextract extract -c .gridextract

  # Serve Prometheus metrics while extracting
  gridextract extract -f client.yaml -g 1047 --metrics-addr 127.0.0.1:9108`,
		Args: cobra.NoArgs,
		RunE: runExtractCmd,
	}

	// Targets
	cmd.Flags().StringP("strategy", "s", config.DefaultStrategy,
		"Default strategy: "+strings.Join(strategy.Names(), ", "))
	cmd.Flags().StringArrayP("grid", "g", nil,
		"Grid to extract as [strategy:]id[:label] (repeatable)")
	cmd.Flags().StringArrayP("fixture", "f", nil,
		"Replay fixture of a client session (repeatable)")

	// Behavior
	cmd.Flags().IntP("retries", "r", config.DefaultRetries,
		"Extra attempts after a retryable failure")
	cmd.Flags().Duration("retry-delay", config.DefaultRetryDelay,
		"Pause before each retry")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of sessions extracted in parallel")
	cmd.Flags().Int("clipboard-attempts", strategy.DefaultClipboardAttempts,
		"Clipboard reads per copy")
	cmd.Flags().Duration("file-timeout", strategy.DefaultFileTimeout,
		"Time to wait for an export file")
	cmd.Flags().Duration("dialog-timeout", strategy.DefaultDialogTimeout,
		"Time to wait for the save dialog")
	cmd.Flags().String("temp-dir", "",
		"Directory for export files and captcha images (default: XDG cache dir)")

	// Parsing
	cmd.Flags().StringToString("schema", nil,
		"Column types as column=type (str, int, float, bool)")
	cmd.Flags().StringSlice("header", nil,
		"Replace the detail header of tdxxls results")
	cmd.Flags().Bool("common", false,
		"Read tdxxls exports as a single table instead of a report")

	// Captcha
	cmd.Flags().String("engine", "",
		"Captcha recognition engine: tesseract, remote, manual")
	cmd.Flags().Int("captcha-attempts", captcha.DefaultMaxAttempts,
		"Recognition attempts per captcha challenge")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .gridextract in current or home directory)")

	// Output
	cmd.Flags().String("format", report.FormatText,
		"Report format: "+strings.Join(report.Formats(), ", "))
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-db", false,
		"Do not record runs in the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data dir)")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address while extracting")

	return cmd
}

// runExtractCmd executes the extract command.
func runExtractCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, getLogJSONFlag(cmd))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runExtract(ctx, cfg, logger, cmd.OutOrStdout())
	if errors.Is(err, errExtractionFailed) {
		var retryable *retryHint
		if errors.As(err, &retryable) {
			fmt.Fprintln(cmd.ErrOrStderr(), "hint: the failure depends on the client's UI timing; running extract again may succeed")
		}
	}
	return err
}

// buildConfig creates a Config from the configuration file and cobra
// command flags. Flags set on the command line override the file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error
	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicitly named file must exist; a missing default file is fine.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		cf, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := cfg.ApplyFile(cf); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if flags.Changed("strategy") {
		if cfg.Strategy, err = flags.GetString("strategy"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("grid") {
		gridArgs, err := flags.GetStringArray("grid")
		if err != nil {
			return nil, err
		}
		cfg.Grids = nil
		for _, arg := range gridArgs {
			g, err := parseGridFlag(arg)
			if err != nil {
				return nil, err
			}
			cfg.Grids = append(cfg.Grids, g)
		}
	}
	if flags.Changed("fixture") {
		if cfg.Fixtures, err = flags.GetStringArray("fixture"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("retries") {
		if cfg.Retries, err = flags.GetInt("retries"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("retry-delay") {
		if cfg.RetryDelay, err = flags.GetDuration("retry-delay"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("clipboard-attempts") {
		if cfg.ClipboardAttempts, err = flags.GetInt("clipboard-attempts"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("file-timeout") {
		if cfg.FileTimeout, err = flags.GetDuration("file-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("dialog-timeout") {
		if cfg.DialogTimeout, err = flags.GetDuration("dialog-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("temp-dir") {
		if cfg.TempDir, err = flags.GetString("temp-dir"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("schema") {
		raw, err := flags.GetStringToString("schema")
		if err != nil {
			return nil, err
		}
		if cfg.Schema, err = model.ParseSchema(raw); err != nil {
			return nil, fmt.Errorf("invalid --schema: %w", err)
		}
	}
	if flags.Changed("header") {
		if cfg.Header, err = flags.GetStringSlice("header"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("common") {
		common, err := flags.GetBool("common")
		if err != nil {
			return nil, err
		}
		cfg.ReportMode = !common
	}

	if flags.Changed("engine") {
		if cfg.Recognizer.Engine, err = flags.GetString("engine"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("captcha-attempts") {
		if cfg.CaptchaMaxAttempts, err = flags.GetInt("captcha-attempts"); err != nil {
			return nil, err
		}
	}

	if cfg.Format, err = flags.GetString("format"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if flags.Changed("db-dir") {
		if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
			return nil, err
		}
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseGridFlag parses a grid given as [strategy:]id[:label].
func parseGridFlag(arg string) (config.Grid, error) {
	parts := strings.Split(arg, ":")

	var g config.Grid
	if _, err := strconv.ParseInt(parts[0], 0, 0); err != nil && len(parts) > 1 {
		g.Strategy = parts[0]
		parts = parts[1:]
	}

	id, err := strconv.ParseInt(parts[0], 0, 0)
	if err != nil {
		return config.Grid{}, fmt.Errorf("invalid grid %q: id must be a number", arg)
	}
	g.ID = int(id)
	g.Label = strings.Join(parts[1:], ":")
	return g, nil
}

// retryHint marks an extraction failure that a later run may not repeat.
type retryHint struct {
	err error
}

func (h *retryHint) Error() string { return h.err.Error() }
func (h *retryHint) Unwrap() error { return h.err }

// runExtract extracts every configured grid from every session and writes
// the report.
func runExtract(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	if err := os.MkdirAll(cfg.TempDir, 0750); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	sessions, err := openSessions(cfg, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	var db *database.HistoryDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
	}

	handler, err := newCaptchaHandler(cfg, db, m, logger)
	if err != nil {
		return err
	}

	extract := pipeline.NewExtractStep(
		pipeline.WithStrategyOptions(strategyOptions(cfg, handler, logger)...),
		pipeline.WithRetries(cfg.Retries),
		pipeline.WithRetryDelay(cfg.RetryDelay),
		pipeline.WithInFlightMetrics(m),
		pipeline.WithExtractLogger(logger),
	)
	factory := func() *pipeline.Pipeline {
		p := pipeline.New(pipeline.WithLogger(logger), pipeline.WithContinueOnError(true))
		p.AddStep(extract)
		if db != nil {
			p.AddStep(pipeline.NewHistoryStep(db))
		}
		p.AddStep(pipeline.NewMetricsStep(m))
		return p
	}

	jobs := buildJobs(cfg, sessions)
	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithBatchLogger(logger),
		pipeline.WithOnRun(func(run *pipeline.Run, index int) {
			logger.Info("extraction finished",
				"job", index+1,
				"of", len(jobs),
				"run", run.ID,
				"session", run.SessionID(),
				"label", run.Job.Label,
				"outcome", run.Outcome(),
			)
		}),
	)

	runs, batchErr := bp.ProcessBatch(ctx, jobs)

	entries := make([]report.Entry, 0, len(runs))
	var failed []*pipeline.Run
	for _, run := range runs {
		if run == nil {
			continue
		}
		entries = append(entries, entryFromRun(run))
		if !run.Succeeded() {
			failed = append(failed, run)
		}
	}

	if err := writeReport(cfg.Format, cfg.ReportFile, stdout, entries); err != nil {
		return err
	}
	if batchErr != nil {
		return fmt.Errorf("extraction interrupted: %w", batchErr)
	}
	if len(failed) == 0 {
		return nil
	}

	err = fmt.Errorf("%w: %d of %d grids", errExtractionFailed, len(failed), len(jobs))
	for _, run := range failed {
		if !strategy.IsRetryable(run.Err) {
			return err
		}
	}
	return &retryHint{err: err}
}

// openSessions creates one session per replay fixture.
func openSessions(cfg *config.Config, logger *slog.Logger) ([]*session.Session, error) {
	sessions := make([]*session.Session, 0, len(cfg.Fixtures))
	for _, path := range cfg.Fixtures {
		fx, err := replay.LoadFixture(path)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", path, err)
		}
		d, err := replay.New(fx, replay.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", path, err)
		}
		sess := session.New(d)
		logger.Debug("session opened", "session", sess.ID(), "fixture", filepath.Base(path))
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// newCaptchaHandler creates the challenge handler shared by all sessions.
// Every recognition attempt is written to history and metrics.
func newCaptchaHandler(cfg *config.Config, db *database.HistoryDB, m *metrics.Metrics, logger *slog.Logger) (*captcha.Handler, error) {
	rcfg := cfg.Recognizer
	rcfg.WorkDir = cfg.TempDir
	rec, err := recognize.New(rcfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}

	var recorder pipeline.CaptchaRecorder
	if db != nil {
		recorder = db
	}

	return captcha.NewHandler(rec,
		captcha.WithMaxAttempts(cfg.CaptchaMaxAttempts),
		captcha.WithObserver(pipeline.NewCaptchaAudit(recorder, m, logger)),
		captcha.WithLogger(logger),
	), nil
}

// strategyOptions maps the configuration onto strategy options.
func strategyOptions(cfg *config.Config, h *captcha.Handler, logger *slog.Logger) []strategy.Option {
	return []strategy.Option{
		strategy.WithLogger(logger),
		strategy.WithSchema(cfg.Schema),
		strategy.WithCaptchaHandler(h),
		strategy.WithClipboardAttempts(cfg.ClipboardAttempts),
		strategy.WithCopyDelay(cfg.CopyDelay),
		strategy.WithPollInterval(cfg.PollInterval),
		strategy.WithDialogTimeout(cfg.DialogTimeout),
		strategy.WithFileTimeout(cfg.FileTimeout),
		strategy.WithTempDir(cfg.TempDir),
		strategy.WithReportMode(cfg.ReportMode),
		strategy.WithHeader(cfg.Header),
	}
}

// buildJobs pairs every session with every grid, session by session.
func buildJobs(cfg *config.Config, sessions []*session.Session) []pipeline.Job {
	jobs := make([]pipeline.Job, 0, len(sessions)*len(cfg.Grids))
	for _, sess := range sessions {
		for _, g := range cfg.Grids {
			jobs = append(jobs, pipeline.Job{
				Session:  sess,
				Strategy: g.StrategyName(cfg.Strategy),
				GridID:   g.ID,
				Label:    g.Label,
			})
		}
	}
	return jobs
}
