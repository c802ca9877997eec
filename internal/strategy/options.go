package strategy

import (
	"log/slog"
	"time"

	"github.com/nao1215/gridextract/internal/captcha"
	"github.com/nao1215/gridextract/internal/model"
)

// Default timing. The client reacts within a few hundred milliseconds on
// an idle machine; the bounds leave room for a loaded one.
const (
	DefaultClipboardAttempts  = 5
	DefaultCopyDelay          = 100 * time.Millisecond
	DefaultPollInterval       = 200 * time.Millisecond
	DefaultDialogTimeout      = 2 * time.Second
	DefaultFileTimeout        = 2 * time.Second
	DefaultHandleAttempts     = 2
	DefaultHandleReadyTimeout = 2 * time.Second
)

// Fixed pauses of the save-as sequence.
const (
	pathSettleDelay = 100 * time.Millisecond
	saveSettleDelay = 200 * time.Millisecond
)

// options are shared by all strategies. Each strategy reads the fields it
// needs and ignores the rest.
type options struct {
	logger             *slog.Logger
	schema             model.Schema
	captcha            *captcha.Handler
	clipboardAttempts  int
	copyDelay          time.Duration
	pollInterval       time.Duration
	dialogTimeout      time.Duration
	fileTimeout        time.Duration
	handleAttempts     int
	handleReadyTimeout time.Duration
	tempDir            string
	reportMode         bool
	header             []string
}

// Option configures a strategy.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		clipboardAttempts:  DefaultClipboardAttempts,
		copyDelay:          DefaultCopyDelay,
		pollInterval:       DefaultPollInterval,
		dialogTimeout:      DefaultDialogTimeout,
		fileTimeout:        DefaultFileTimeout,
		handleAttempts:     DefaultHandleAttempts,
		handleReadyTimeout: DefaultHandleReadyTimeout,
		reportMode:         true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSchema sets the column types used when parsing grid text.
func WithSchema(schema model.Schema) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// WithCaptchaHandler sets the handler consulted before clipboard reads.
// Without one, clipboard strategies never look for a challenge dialog.
func WithCaptchaHandler(h *captcha.Handler) Option {
	return func(o *options) {
		o.captcha = h
	}
}

// WithClipboardAttempts sets how many times the clipboard is read before
// giving up. Values below 1 are ignored.
func WithClipboardAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.clipboardAttempts = n
		}
	}
}

// WithCopyDelay sets the pause between posting the copy command and
// reading the clipboard.
func WithCopyDelay(d time.Duration) Option {
	return func(o *options) {
		o.copyDelay = d
	}
}

// WithPollInterval sets the interval of dialog and file polling.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// WithDialogTimeout bounds the wait for the save dialog.
func WithDialogTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialogTimeout = d
	}
}

// WithFileTimeout bounds the wait for the export file.
func WithFileTimeout(d time.Duration) Option {
	return func(o *options) {
		o.fileTimeout = d
	}
}

// WithHandleAttempts sets how many times the export button lookup waits
// for the button to become ready.
func WithHandleAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.handleAttempts = n
		}
	}
}

// WithHandleReadyTimeout bounds each readiness wait of the button lookup.
func WithHandleReadyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.handleReadyTimeout = d
	}
}

// WithTempDir sets the directory export files are written to.
// The OS temp directory is used by default.
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.tempDir = dir
	}
}

// WithReportMode selects how MultiSectionFileExport reads its file: true
// for a summary block followed by a detail table, false for a single table.
func WithReportMode(report bool) Option {
	return func(o *options) {
		o.reportMode = report
	}
}

// WithHeader replaces the detail header of MultiSectionFileExport results.
func WithHeader(header []string) Option {
	return func(o *options) {
		o.header = header
	}
}
