package strategy

import (
	"errors"

	"github.com/nao1215/gridextract/internal/captcha"
	"github.com/nao1215/gridextract/internal/tabular"
)

var (
	// ErrClipboardUnavailable is returned when every clipboard read failed.
	ErrClipboardUnavailable = errors.New("clipboard unavailable")

	// ErrExportTimeout is returned when the save dialog or the export file
	// did not appear in time.
	ErrExportTimeout = errors.New("export timed out")

	// ErrDriverNotBound is returned by Extract before BindDriver was called.
	ErrDriverNotBound = errors.New("strategy has no driver bound")

	// ErrExportDisabled is returned when the report export button is disabled,
	// which the client does when there is nothing to export.
	ErrExportDisabled = errors.New("export button disabled")

	// ErrUnknownStrategy is returned by New for an unsupported name.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// IsRetryable reports whether err is tied to the client's UI timing, so
// that running the whole extraction again may succeed. A malformed
// clipboard table counts because it usually means a challenge dialog was
// copied instead of the grid.
func IsRetryable(err error) bool {
	return errors.Is(err, captcha.ErrCaptchaUnsolved) ||
		errors.Is(err, ErrExportTimeout) ||
		errors.Is(err, ErrClipboardUnavailable) ||
		errors.Is(err, tabular.ErrMalformedTable)
}
