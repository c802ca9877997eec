package driver

import "errors"

var (
	// ErrControlNotFound is returned when no control in the window tree
	// matches the requested id, class or title.
	ErrControlNotFound = errors.New("control not found")

	// ErrClipboardBusy is returned by ReadClipboardText when the clipboard
	// is held by another process or holds no text. It is transient; callers
	// retry and report their own error once they give up.
	ErrClipboardBusy = errors.New("clipboard busy")

	// ErrNotReady is returned by WaitReady when a control does not become
	// visible and enabled in time.
	ErrNotReady = errors.New("control not ready")
)
