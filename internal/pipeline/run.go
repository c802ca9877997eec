package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/gridextract/internal/captcha"
	"github.com/nao1215/gridextract/internal/driver"
	"github.com/nao1215/gridextract/internal/model"
	"github.com/nao1215/gridextract/internal/session"
	"github.com/nao1215/gridextract/internal/strategy"
	"github.com/nao1215/gridextract/internal/tabular"
)

// Job is one extraction request.
type Job struct {
	// Session is the client connection to extract from.
	Session *session.Session

	// Strategy is the strategy name, see strategy.Names.
	Strategy string

	// GridID is the grid control id, or the export button id for tdxxls.
	GridID int

	// Label is a free-form name for the grid, such as "position".
	Label string
}

// Outcome labels used in history rows and metrics.
const (
	OutcomeOK                   = "ok"
	OutcomeCaptchaUnsolved      = "captcha_unsolved"
	OutcomeExportTimeout        = "export_timeout"
	OutcomeExportDisabled       = "export_disabled"
	OutcomeClipboardUnavailable = "clipboard_unavailable"
	OutcomeMalformed            = "malformed"
	OutcomeControlNotFound      = "control_not_found"
	OutcomeCanceled             = "canceled"
	OutcomeError                = "error"
)

// Run is the state of one job as it passes through the pipeline.
type Run struct {
	// ID identifies the run in logs and history.
	ID string

	// Job is the request.
	Job Job

	// Result is set when extraction succeeded.
	Result *model.Result

	// Err is the extraction error, if any.
	Err error

	// Attempts is how many times extraction ran, retries included.
	Attempts int

	// StartedAt and FinishedAt bound the extraction.
	StartedAt  time.Time
	FinishedAt time.Time

	// PerformedSteps lists the steps that ran, in order.
	PerformedSteps []string
}

// NewRun creates a run for job with a fresh id.
func NewRun(job Job) *Run {
	return &Run{
		ID:             uuid.NewString(),
		Job:            job,
		PerformedSteps: make([]string, 0),
	}
}

// Succeeded reports whether extraction produced a result.
func (r *Run) Succeeded() bool {
	return r.Err == nil && r.Result != nil
}

// Duration returns how long extraction took.
func (r *Run) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SessionID returns the id of the job's session, or "" without one.
func (r *Run) SessionID() string {
	if r.Job.Session == nil {
		return ""
	}
	return r.Job.Session.ID()
}

// Outcome classifies the run for history and metrics.
func (r *Run) Outcome() string {
	return Classify(r.Err)
}

// Classify maps an extraction error to an outcome label.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, captcha.ErrCaptchaUnsolved):
		return OutcomeCaptchaUnsolved
	case errors.Is(err, strategy.ErrExportTimeout):
		return OutcomeExportTimeout
	case errors.Is(err, strategy.ErrExportDisabled):
		return OutcomeExportDisabled
	case errors.Is(err, strategy.ErrClipboardUnavailable):
		return OutcomeClipboardUnavailable
	case errors.Is(err, tabular.ErrMalformedTable):
		return OutcomeMalformed
	case errors.Is(err, driver.ErrControlNotFound):
		return OutcomeControlNotFound
	default:
		return OutcomeError
	}
}
