package strategy

import (
	"context"
	"fmt"

	"github.com/nao1215/gridextract/internal/driver"
	"github.com/nao1215/gridextract/internal/model"
	"github.com/nao1215/gridextract/internal/poll"
	"github.com/nao1215/gridextract/internal/session"
	"github.com/nao1215/gridextract/internal/tabular"
)

// trigger makes the client copy grid to the clipboard.
type trigger func(ctx context.Context, d driver.Driver, grid driver.Control) error

// ClipboardCopy copies the grid with Ctrl+A Ctrl+C and parses the
// clipboard text.
type ClipboardCopy struct {
	base
}

// NewClipboardCopy creates a ClipboardCopy strategy.
func NewClipboardCopy(opts ...Option) *ClipboardCopy {
	return &ClipboardCopy{base: newBase(opts)}
}

// Name returns "copy".
func (s *ClipboardCopy) Name() string {
	return NameCopy
}

// Extract implements Strategy.
func (s *ClipboardCopy) Extract(ctx context.Context, sess *session.Session, gridID int) (*model.Result, error) {
	return s.copyAndParse(ctx, sess, gridID, s.sendCopyKeys)
}

func (s *ClipboardCopy) sendCopyKeys(ctx context.Context, d driver.Driver, grid driver.Control) error {
	s.foreground(ctx, d, grid)
	if err := d.SendKeys(ctx, grid, driver.KeysSelectAllCopy); err != nil {
		return fmt.Errorf("send copy keys to %s: %w", grid, err)
	}
	return nil
}

// WindowMessageCopy posts the client's copy command to the grid instead of
// typing keys, for windows that do not reliably take keyboard focus.
type WindowMessageCopy struct {
	base
}

// NewWindowMessageCopy creates a WindowMessageCopy strategy.
func NewWindowMessageCopy(opts ...Option) *WindowMessageCopy {
	return &WindowMessageCopy{base: newBase(opts)}
}

// Name returns "wmcopy".
func (s *WindowMessageCopy) Name() string {
	return NameWMCopy
}

// Extract implements Strategy.
func (s *WindowMessageCopy) Extract(ctx context.Context, sess *session.Session, gridID int) (*model.Result, error) {
	return s.copyAndParse(ctx, sess, gridID, s.postCopyCommand)
}

func (s *WindowMessageCopy) postCopyCommand(ctx context.Context, d driver.Driver, grid driver.Control) error {
	if err := d.PostMessage(ctx, grid, driver.WMCommand, driver.CmdCopy, 0); err != nil {
		return fmt.Errorf("post copy command to %s: %w", grid, err)
	}
	return poll.Sleep(ctx, s.opts.copyDelay)
}

// copyAndParse is the clipboard pipeline both copy strategies share:
// trigger the copy, clear a captcha dialog if the session expects one,
// read the clipboard and parse it.
func (b *base) copyAndParse(ctx context.Context, sess *session.Session, gridID int, copyGrid trigger) (*model.Result, error) {
	if sess == nil {
		return nil, session.ErrNoSession
	}
	d, err := b.boundDriver()
	if err != nil {
		return nil, err
	}
	grid, err := b.grid(ctx, d, gridID)
	if err != nil {
		return nil, err
	}

	if err := copyGrid(ctx, d, grid); err != nil {
		return nil, err
	}

	if b.opts.captcha != nil {
		if _, err := b.opts.captcha.Resolve(ctx, d, sess); err != nil {
			return nil, fmt.Errorf("grid %d: %w", gridID, err)
		}
	}

	text, err := b.readClipboard(ctx, d)
	if err != nil {
		return nil, err
	}

	records, err := tabular.ParseSimple(text, b.opts.schema)
	if err != nil {
		// Text that does not parse is usually the challenge dialog's
		// contents rather than the grid's.
		sess.MarkCaptchaRequired()
		b.logger().Warn("clipboard text is not a grid, expecting a captcha next time",
			"session", sess.ID(), "grid", gridID, "error", err)
		return nil, fmt.Errorf("grid %d: %w", gridID, err)
	}

	res := model.NewResult(records)
	res.Raw = []byte(text)
	return res, nil
}

// readClipboard reads the clipboard with a fixed number of immediate retries.
func (b *base) readClipboard(ctx context.Context, d driver.Driver) (string, error) {
	var text string
	err := poll.Attempts(ctx, b.opts.clipboardAttempts,
		func(int) error {
			var err error
			text, err = d.ReadClipboardText(ctx)
			return err
		},
		func(attempt int, err error) {
			b.logger().Warn("failed to read clipboard, retrying",
				"attempt", attempt, "max_attempts", b.opts.clipboardAttempts, "error", err)
		},
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w after %d attempts: %w", ErrClipboardUnavailable, b.opts.clipboardAttempts, err)
	}
	return text, nil
}
