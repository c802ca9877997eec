package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/gridextract/internal/captcha"
	"github.com/nao1215/gridextract/internal/model"
	"github.com/nao1215/gridextract/internal/recognize"
	"github.com/nao1215/gridextract/internal/report"
	"github.com/nao1215/gridextract/internal/strategy"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "gridextract"

	// DefaultStrategy is used for grids that do not name their own.
	DefaultStrategy = strategy.NameCopy

	// DefaultConcurrency is the number of client sessions extracted in
	// parallel. Grids of one session always run one after another.
	DefaultConcurrency = 4

	// DefaultRetries is the number of extra attempts after a retryable
	// failure such as an unsolved captcha or a slow export.
	DefaultRetries = 2

	// DefaultRetryDelay is the pause before each retry.
	DefaultRetryDelay = 500 * time.Millisecond
)

// Grid names one grid to extract.
type Grid struct {
	// ID is the grid control id, or the export button id for tdxxls.
	ID int `yaml:"id"`

	// Label is a free-form name shown in reports and history.
	Label string `yaml:"label,omitempty"`

	// Strategy overrides Config.Strategy for this grid.
	Strategy string `yaml:"strategy,omitempty"`
}

// StrategyName returns the grid's strategy, falling back to def.
func (g Grid) StrategyName(def string) string {
	if g.Strategy != "" {
		return g.Strategy
	}
	return def
}

// Config holds all options of an extraction run.
// It is populated from CLI flags and the configuration file and passed
// down explicitly.
type Config struct {
	// Strategy is the default strategy name, see strategy.Names.
	Strategy string

	// Grids are the grids to extract, in order.
	Grids []Grid

	// Fixtures are replay fixture files. Each one is a client session.
	Fixtures []string

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// Concurrency is the number of sessions extracted in parallel.
	Concurrency int

	// Retries is the number of extra attempts after a retryable failure.
	Retries int

	// RetryDelay is the pause before each retry.
	RetryDelay time.Duration

	// ClipboardAttempts is how many times the clipboard is read per copy.
	ClipboardAttempts int

	// CopyDelay is the pause between the copy command and the clipboard read.
	CopyDelay time.Duration

	// PollInterval is the interval of dialog and file polling.
	PollInterval time.Duration

	// DialogTimeout bounds the wait for the save dialog.
	DialogTimeout time.Duration

	// FileTimeout bounds the wait for an export file.
	FileTimeout time.Duration

	// TempDir receives export files and captcha images.
	// Defaults to the XDG cache directory.
	TempDir string

	// Schema maps column names to field types.
	Schema model.Schema

	// Header replaces the detail header of tdxxls results.
	Header []string

	// ReportMode reads tdxxls exports as a summary block plus details.
	// When false the export is read as one common table.
	ReportMode bool

	// CaptchaMaxAttempts is the recognition budget per challenge.
	CaptchaMaxAttempts int

	// Recognizer selects and configures the captcha recognition engine.
	Recognizer recognize.Config

	// Format is the report format, see report.Formats.
	Format string

	// ReportFile is the output file path for the report, stdout when empty.
	ReportFile string

	// DBDir is the directory of the history database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB stores runs and captcha attempts in the history database.
	SaveToDB bool

	// MetricsAddr, when set, serves Prometheus metrics on this address
	// while the extraction runs.
	MetricsAddr string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Strategy:           DefaultStrategy,
		Concurrency:        DefaultConcurrency,
		Retries:            DefaultRetries,
		RetryDelay:         DefaultRetryDelay,
		ClipboardAttempts:  strategy.DefaultClipboardAttempts,
		CopyDelay:          strategy.DefaultCopyDelay,
		PollInterval:       strategy.DefaultPollInterval,
		DialogTimeout:      strategy.DefaultDialogTimeout,
		FileTimeout:        strategy.DefaultFileTimeout,
		TempDir:            XDGCacheDir(),
		ReportMode:         true,
		CaptchaMaxAttempts: captcha.DefaultMaxAttempts,
		Recognizer: recognize.Config{
			Engine:    recognize.EngineTesseract,
			Tesseract: "tesseract",
			Lang:      "eng",
			Threshold: recognize.DefaultThreshold,
			Timeout:   recognize.DefaultRemoteTimeout,
		},
		Format:   report.FormatText,
		DBDir:    XDGDataDir(),
		SaveToDB: true,
	}
}

// XDGDataDir returns the XDG data directory for gridextract.
// On Linux: ~/.local/share/gridextract
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for gridextract.
// On Linux: ~/.config/gridextract
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for gridextract.
// On Linux: ~/.cache/gridextract
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Grids) == 0 {
		return ErrNoGrid
	}
	if !slices.Contains(strategy.Names(), c.Strategy) {
		return fmt.Errorf("%w: %q", ErrUnknownStrategy, c.Strategy)
	}
	for _, g := range c.Grids {
		if g.ID <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidGridID, g.ID)
		}
		if name := g.StrategyName(c.Strategy); !slices.Contains(strategy.Names(), name) {
			return fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
		}
	}

	if len(c.Fixtures) == 0 {
		return ErrNoClient
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Retries < 0 {
		return ErrInvalidRetries
	}
	if c.ClipboardAttempts <= 0 || c.CaptchaMaxAttempts <= 0 {
		return ErrInvalidAttempts
	}
	if c.PollInterval <= 0 || c.DialogTimeout <= 0 || c.FileTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RetryDelay < 0 || c.CopyDelay < 0 {
		return ErrInvalidDelay
	}

	if !slices.Contains(report.Formats(), c.Format) {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, c.Format)
	}

	switch c.Recognizer.Engine {
	case recognize.EngineTesseract, recognize.EngineManual:
	case recognize.EngineRemote:
		if c.Recognizer.URL == "" {
			return ErrRemoteURLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, c.Recognizer.Engine)
	}

	return nil
}
