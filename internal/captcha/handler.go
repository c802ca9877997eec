package captcha

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nao1215/gridextract/internal/driver"
	"github.com/nao1215/gridextract/internal/poll"
	"github.com/nao1215/gridextract/internal/recognize"
	"github.com/nao1215/gridextract/internal/session"
)

const (
	// DefaultMaxAttempts is the default recognition budget per challenge.
	DefaultMaxAttempts = 5

	// DefaultProbeTimeout bounds the check for the challenge dialog.
	DefaultProbeTimeout = time.Second

	// DefaultRefreshDelay is the pause before clicking the image for a new code.
	DefaultRefreshDelay = 100 * time.Millisecond

	// CodeLength is the number of characters the client's codes have.
	CodeLength = 4
)

// Controls of the challenge dialog.
var (
	// DialogMatcher identifies the challenge dialog inside the top window.
	DialogMatcher = driver.Matcher{Class: "Static", TitlePattern: "验证码"}

	// ImageControl shows the code; clicking it draws a new one.
	ImageControl = driver.ByID(0x965, "Static")

	// InputControl receives the code.
	InputControl = driver.ByID(0x964, "Edit")

	// StatusControl exists only while the dialog is open.
	StatusControl = driver.ByID(0x966, "Static")

	// CancelControl closes the dialog without a code.
	CancelControl = driver.ByIndex("Button", 2)
)

// Handler resolves captcha challenges for clipboard extraction.
type Handler struct {
	recognizer   recognize.Recognizer
	maxAttempts  int
	probeTimeout time.Duration
	refreshDelay time.Duration
	observer     AttemptObserver
	logger       *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxAttempts sets the recognition budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxAttempts = n
		}
	}
}

// WithProbeTimeout sets how long to wait for the dialog to appear.
func WithProbeTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.probeTimeout = d
	}
}

// WithRefreshDelay sets the pause before requesting a new image.
func WithRefreshDelay(d time.Duration) Option {
	return func(h *Handler) {
		h.refreshDelay = d
	}
}

// WithObserver registers an observer for every attempt.
func WithObserver(o AttemptObserver) Option {
	return func(h *Handler) {
		h.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a Handler that reads codes with r.
func NewHandler(r recognize.Recognizer, opts ...Option) *Handler {
	h := &Handler{
		recognizer:   r,
		maxAttempts:  DefaultMaxAttempts,
		probeTimeout: DefaultProbeTimeout,
		refreshDelay: DefaultRefreshDelay,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// MaxAttempts returns the recognition budget.
func (h *Handler) MaxAttempts() int {
	return h.maxAttempts
}

// Resolve clears a pending challenge dialog for sess through d.
//
// Nothing is done unless the session flags a possible challenge. If the
// flag is set but no dialog shows up within the probe timeout, the flag is
// cleared. Otherwise up to MaxAttempts codes are recognized. Codes of the
// wrong length are not submitted. The returned state is Resolved on
// success and Exhausted together with ErrCaptchaUnsolved when the budget
// ran out.
func (h *Handler) Resolve(ctx context.Context, d driver.Driver, sess *session.Session) (State, error) {
	if sess == nil {
		return Idle, session.ErrNoSession
	}
	if !sess.CaptchaRequired() {
		return Resolved, nil
	}

	if !d.DialogExists(ctx, DialogMatcher, h.probeTimeout) {
		if err := ctx.Err(); err != nil {
			return Idle, err
		}
		h.logger.Debug("no captcha dialog present", "session", sess.ID())
		sess.ClearCaptchaRequired()
		return Resolved, nil
	}
	h.logger.Info("captcha dialog present", "session", sess.ID(), "max_attempts", h.maxAttempts)

	for attempt := 1; attempt <= h.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Solving, err
		}

		ch := Challenge{Attempt: attempt, MaxAttempts: h.maxAttempts}
		outcome, err := h.try(ctx, d, &ch)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Solving, ctxErr
		}
		h.observe(sess, ch, outcome, err)

		if outcome == OutcomeDismissed {
			h.logger.Info("captcha dialog dismissed", "session", sess.ID(), "attempt", attempt)
			return Resolved, nil
		}
		if err := h.refresh(ctx, d); err != nil {
			return Solving, err
		}
	}

	h.cancel(ctx, d)
	return Exhausted, fmt.Errorf("%w after %d attempts", ErrCaptchaUnsolved, h.maxAttempts)
}

// try runs one capture, recognize and submit cycle.
func (h *Handler) try(ctx context.Context, d driver.Driver, ch *Challenge) (Outcome, error) {
	img, err := d.FindInTop(ctx, ImageControl)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("find captcha image: %w", err)
	}
	ch.Image, err = d.CaptureImage(ctx, img)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("capture captcha image: %w", err)
	}

	code, err := h.recognizer.Recognize(ctx, ch.Image)
	if err != nil {
		return OutcomeFailed, err
	}
	ch.Code = strings.Join(strings.Fields(code), "")
	h.logger.Info("captcha recognized", "attempt", ch.Attempt, "code", ch.Code)

	if utf8.RuneCountInString(ch.Code) != CodeLength {
		return OutcomeInvalid, nil
	}

	input, err := d.FindInTop(ctx, InputControl)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("find captcha input: %w", err)
	}
	if err := d.SetText(ctx, input, ch.Code); err != nil {
		return OutcomeFailed, fmt.Errorf("enter captcha code: %w", err)
	}
	top, err := d.TopWindow(ctx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("find captcha dialog: %w", err)
	}
	if err := d.Foreground(ctx, top); err != nil {
		h.logger.Debug("failed to focus captcha dialog", "error", err)
	}
	if err := d.SendKeys(ctx, top, driver.KeysEnter); err != nil {
		return OutcomeFailed, fmt.Errorf("submit captcha code: %w", err)
	}

	if h.dismissed(ctx, d) {
		return OutcomeDismissed, nil
	}
	return OutcomeRejected, nil
}

// dismissed reports whether the dialog's status text can no longer be read.
func (h *Handler) dismissed(ctx context.Context, d driver.Driver) bool {
	status, err := d.FindInTop(ctx, StatusControl)
	if err != nil {
		return true
	}
	text, err := d.WindowText(ctx, status)
	if err != nil {
		return true
	}
	h.logger.Info("captcha dialog still open", "status", text)
	return false
}

// refresh waits briefly and clicks the image for a new code.
func (h *Handler) refresh(ctx context.Context, d driver.Driver) error {
	if err := poll.Sleep(ctx, h.refreshDelay); err != nil {
		return err
	}
	img, err := d.FindInTop(ctx, ImageControl)
	if err != nil {
		h.logger.Debug("captcha image not found for refresh", "error", err)
		return nil
	}
	if err := d.Click(ctx, img); err != nil {
		h.logger.Debug("failed to refresh captcha image", "error", err)
	}
	return nil
}

// cancel closes the dialog with its cancel button.
func (h *Handler) cancel(ctx context.Context, d driver.Driver) {
	btn, err := d.FindInTop(ctx, CancelControl)
	if err != nil {
		h.logger.Warn("captcha cancel button not found", "error", err)
		return
	}
	if err := d.Click(ctx, btn); err != nil {
		h.logger.Warn("failed to cancel captcha dialog", "error", err)
	}
}

func (h *Handler) observe(sess *session.Session, ch Challenge, outcome Outcome, err error) {
	engine := ""
	if h.recognizer != nil {
		engine = h.recognizer.Name()
	}
	if err != nil {
		h.logger.Warn("captcha attempt failed",
			"session", sess.ID(), "attempt", ch.Attempt, "max_attempts", ch.MaxAttempts, "error", err)
	}
	if h.observer == nil {
		return
	}
	h.observer.ObserveAttempt(Attempt{
		SessionID:   sess.ID(),
		Attempt:     ch.Attempt,
		MaxAttempts: ch.MaxAttempts,
		Engine:      engine,
		Code:        ch.Code,
		Outcome:     outcome,
		Err:         err,
	})
}
