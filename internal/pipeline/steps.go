package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/gridextract/internal/captcha"
	"github.com/nao1215/gridextract/internal/database"
	"github.com/nao1215/gridextract/internal/metrics"
	"github.com/nao1215/gridextract/internal/poll"
	"github.com/nao1215/gridextract/internal/strategy"
)

// ErrNoSession is returned by ExtractStep for a job without a session.
var ErrNoSession = errors.New("job has no session")

// DefaultRetryDelay is the pause between extraction attempts.
const DefaultRetryDelay = 500 * time.Millisecond

// ExtractStep runs the job's strategy against the job's session.
// A fresh strategy is created for every run and bound to the session's
// driver. Retryable failures are retried up to the configured count; the
// final error, if any, is stored on the Run.
type ExtractStep struct {
	// strategyOpts are passed to strategy.New for every run.
	strategyOpts []strategy.Option

	// retries is the number of extra attempts after a retryable failure.
	retries int

	// retryDelay is the pause before each retry.
	retryDelay time.Duration

	// metrics, if set, tracks runs in flight.
	metrics *metrics.Metrics

	// logger for structured logging.
	logger *slog.Logger
}

// ExtractStepOption configures an ExtractStep.
type ExtractStepOption func(*ExtractStep)

// WithStrategyOptions sets the options every strategy is created with.
func WithStrategyOptions(opts ...strategy.Option) ExtractStepOption {
	return func(s *ExtractStep) {
		s.strategyOpts = append(s.strategyOpts, opts...)
	}
}

// WithRetries sets how many times a retryable failure is retried.
// Negative values are treated as zero.
func WithRetries(n int) ExtractStepOption {
	return func(s *ExtractStep) {
		if n < 0 {
			n = 0
		}
		s.retries = n
	}
}

// WithRetryDelay sets the pause before each retry.
func WithRetryDelay(d time.Duration) ExtractStepOption {
	return func(s *ExtractStep) {
		s.retryDelay = d
	}
}

// WithInFlightMetrics tracks running extractions in m.
func WithInFlightMetrics(m *metrics.Metrics) ExtractStepOption {
	return func(s *ExtractStep) {
		s.metrics = m
	}
}

// WithExtractLogger sets a custom logger for the extract step.
func WithExtractLogger(logger *slog.Logger) ExtractStepOption {
	return func(s *ExtractStep) {
		s.logger = logger
	}
}

// NewExtractStep creates a new extraction step.
func NewExtractStep(opts ...ExtractStepOption) *ExtractStep {
	s := &ExtractStep{
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ExtractStep) Name() string {
	return "extract"
}

// Do executes the extraction. Only a missing session is a step error;
// every extraction failure is recorded on run.Err.
func (s *ExtractStep) Do(ctx context.Context, run *Run) error {
	sess := run.Job.Session
	if sess == nil {
		return ErrNoSession
	}

	run.StartedAt = time.Now()
	defer func() {
		run.FinishedAt = time.Now()
	}()

	st, err := strategy.New(run.Job.Strategy, s.strategyOpts...)
	if err != nil {
		run.Err = err
		return nil
	}
	st.BindDriver(sess.Driver())

	if s.metrics != nil {
		s.metrics.InFlight.Inc()
		defer s.metrics.InFlight.Dec()
	}

	for attempt := 1; ; attempt++ {
		run.Attempts = attempt
		res, err := st.Extract(ctx, sess, run.Job.GridID)
		if err == nil {
			run.Result = res
			run.Err = nil
			s.logger.Debug("grid extracted",
				"run", run.ID,
				"strategy", st.Name(),
				"grid", run.Job.GridID,
				"rows", res.Len(),
				"attempt", attempt,
			)
			return nil
		}
		run.Err = err

		if attempt > s.retries || !strategy.IsRetryable(err) || ctx.Err() != nil {
			s.logger.Warn("extraction failed",
				"run", run.ID,
				"strategy", st.Name(),
				"grid", run.Job.GridID,
				"attempts", attempt,
				"error", err,
			)
			return nil
		}

		s.logger.Info("retrying extraction",
			"run", run.ID,
			"strategy", st.Name(),
			"grid", run.Job.GridID,
			"attempt", attempt,
			"error", err,
		)
		if err := poll.Sleep(ctx, s.retryDelay); err != nil {
			run.Err = err
			return nil
		}
	}
}

// RunRecorder stores finished runs.
type RunRecorder interface {
	SaveRun(ctx context.Context, record *database.RunRecord) error
}

// HistoryStep writes the run to the history database.
type HistoryStep struct {
	recorder RunRecorder
}

// NewHistoryStep creates a step that stores runs in recorder.
func NewHistoryStep(recorder RunRecorder) *HistoryStep {
	return &HistoryStep{recorder: recorder}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return "history"
}

// Do saves the run.
func (s *HistoryStep) Do(ctx context.Context, run *Run) error {
	if err := s.recorder.SaveRun(ctx, RecordOf(run)); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// RecordOf converts a run to its history row.
func RecordOf(run *Run) *database.RunRecord {
	record := &database.RunRecord{
		ID:         run.ID,
		SessionID:  run.SessionID(),
		Strategy:   run.Job.Strategy,
		GridID:     run.Job.GridID,
		Label:      run.Job.Label,
		Outcome:    run.Outcome(),
		Attempts:   run.Attempts,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Err != nil {
		record.Error = run.Err.Error()
	}
	if run.Result != nil {
		record.Rows = run.Result.Len()
		record.HasSummary = run.Result.HasSummary()
		record.ContentHash = database.HashContent(run.Result.Raw)
		record.Result = run.Result
	}
	return record
}

// MetricsStep records the run in Prometheus metrics.
type MetricsStep struct {
	metrics *metrics.Metrics
}

// NewMetricsStep creates a step that observes runs in m.
func NewMetricsStep(m *metrics.Metrics) *MetricsStep {
	return &MetricsStep{metrics: m}
}

// Name returns the step name.
func (s *MetricsStep) Name() string {
	return "metrics"
}

// Do observes the run.
func (s *MetricsStep) Do(_ context.Context, run *Run) error {
	s.metrics.ObserveExtraction(run.Job.Strategy, run.Outcome(), run.Result.Len(), run.Duration())
	return nil
}

// CaptchaRecorder stores captcha recognition attempts.
type CaptchaRecorder interface {
	InsertCaptchaAttempt(ctx context.Context, record *database.CaptchaAttemptRecord) error
}

// CaptchaAudit is a captcha.AttemptObserver that writes every attempt to
// history and metrics. Either sink may be nil.
type CaptchaAudit struct {
	recorder CaptchaRecorder
	metrics  *metrics.Metrics
	timeout  time.Duration
	logger   *slog.Logger
}

var _ captcha.AttemptObserver = (*CaptchaAudit)(nil)

// NewCaptchaAudit creates an audit observer.
func NewCaptchaAudit(recorder CaptchaRecorder, m *metrics.Metrics, logger *slog.Logger) *CaptchaAudit {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptchaAudit{
		recorder: recorder,
		metrics:  m,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// ObserveAttempt implements captcha.AttemptObserver.
func (a *CaptchaAudit) ObserveAttempt(at captcha.Attempt) {
	if a.metrics != nil {
		a.metrics.ObserveCaptchaAttempt(at.Engine, string(at.Outcome))
	}
	if a.recorder == nil {
		return
	}

	record := &database.CaptchaAttemptRecord{
		SessionID:   at.SessionID,
		Attempt:     at.Attempt,
		MaxAttempts: at.MaxAttempts,
		Engine:      at.Engine,
		Code:        at.Code,
		Outcome:     string(at.Outcome),
	}
	if at.Err != nil {
		record.Error = at.Err.Error()
	}

	// Observers have no context of their own.
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.recorder.InsertCaptchaAttempt(ctx, record); err != nil {
		a.logger.Warn("failed to record captcha attempt",
			"session", at.SessionID,
			"attempt", at.Attempt,
			"error", err,
		)
	}
}
