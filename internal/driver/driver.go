package driver

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Window message constants used by the extraction strategies.
const (
	// WMCommand is the Win32 WM_COMMAND message.
	WMCommand uint32 = 0x0111

	// CmdCopy is the client's menu command id for "copy grid to clipboard".
	CmdCopy uintptr = 0xE122
)

// Key sequences sent to the client.
const (
	KeysSelectAllCopy = "^A^C"
	KeysSave          = "^s"
	// KeysSaveOverwrite presses Alt+S in the save dialog and Alt+Y on the
	// "file exists, replace?" prompt that may follow.
	KeysSaveOverwrite = "%{s}%{y}"
	KeysEnter         = "{ENTER}"
)

// GridClass is the window class of the client's proprietary grid control.
const GridClass = "CVirtualGridCtrl"

// Control identifies a window or child control in the client's window tree.
type Control struct {
	// Handle is the native window handle.
	Handle uintptr

	// ID is the dialog control id, or 0 for top-level windows.
	ID int

	// Class is the window class name.
	Class string

	// Title is the window text at lookup time.
	Title string
}

// String formats the control for log output.
func (c Control) String() string {
	return fmt.Sprintf("%s#%d(0x%x)", c.Class, c.ID, c.Handle)
}

// Matcher selects a control inside the current top window.
// Zero-valued fields are ignored; all set fields must match.
type Matcher struct {
	// ControlID matches the dialog control id.
	ControlID int

	// Class matches the window class exactly.
	Class string

	// Title matches the window text exactly.
	Title string

	// TitlePattern is a regular expression matched against the window text.
	TitlePattern string

	// Index picks the n-th (1-based) control of Class, as in "Edit1" or "Button2".
	Index int
}

// ByID matches a control by id and class.
func ByID(id int, class string) Matcher {
	return Matcher{ControlID: id, Class: class}
}

// ByIndex matches the n-th control of a class.
func ByIndex(class string, index int) Matcher {
	return Matcher{Class: class, Index: index}
}

// ByTitle matches a control by its exact window text.
func ByTitle(title string) Matcher {
	return Matcher{Title: title}
}

// String formats the matcher for log output.
func (m Matcher) String() string {
	return fmt.Sprintf("{id=%d class=%q title=%q pattern=%q index=%d}",
		m.ControlID, m.Class, m.Title, m.TitlePattern, m.Index)
}

// Match reports whether c satisfies m. index is c's 1-based position among
// the top window's controls of the same class. An invalid TitlePattern is
// returned as an error.
func (m Matcher) Match(c Control, index int) (bool, error) {
	if m.ControlID != 0 && m.ControlID != c.ID {
		return false, nil
	}
	if m.Class != "" && m.Class != c.Class {
		return false, nil
	}
	if m.Title != "" && m.Title != c.Title {
		return false, nil
	}
	if m.Index != 0 && m.Index != index {
		return false, nil
	}
	if m.TitlePattern != "" {
		re, err := regexp.Compile(m.TitlePattern)
		if err != nil {
			return false, fmt.Errorf("invalid title pattern %q: %w", m.TitlePattern, err)
		}
		if !re.MatchString(c.Title) {
			return false, nil
		}
	}
	return true, nil
}

// Locator finds controls in the client's window tree.
type Locator interface {
	// LocateControl finds a child of the client's main window by id and class.
	// It returns ErrControlNotFound if there is none.
	LocateControl(ctx context.Context, id int, class string) (Control, error)

	// TopWindow returns the client's current top-level window, which is a
	// modal dialog whenever one is open.
	TopWindow(ctx context.Context) (Control, error)

	// FindInTop finds a control inside the top window.
	FindInTop(ctx context.Context, m Matcher) (Control, error)

	// DialogExists reports whether a control matching m appears inside the
	// top window within timeout.
	DialogExists(ctx context.Context, m Matcher, timeout time.Duration) bool

	// PopDialogExists reports whether the client currently shows a modal
	// pop-up dialog over its main window.
	PopDialogExists(ctx context.Context) bool
}

// Window manipulates a single control.
type Window interface {
	Foreground(ctx context.Context, c Control) error
	IsMinimized(ctx context.Context, c Control) (bool, error)
	Restore(ctx context.Context, c Control) error
	Click(ctx context.Context, c Control) error
	SetText(ctx context.Context, c Control, text string) error

	// WindowText returns the control's text. It fails once the control has
	// been destroyed, which is how dismissed dialogs are detected.
	WindowText(ctx context.Context, c Control) (string, error)

	IsEnabled(ctx context.Context, c Control) (bool, error)

	// WaitReady blocks until the control is visible and enabled, or returns
	// ErrNotReady after timeout.
	WaitReady(ctx context.Context, c Control, timeout time.Duration) error
}

// Input delivers synthetic input to a control.
type Input interface {
	// SendKeys types a key sequence into the control without changing focus.
	SendKeys(ctx context.Context, c Control, keys string) error

	// PostMessage posts a window message to the control's handle.
	PostMessage(ctx context.Context, c Control, msg uint32, wParam, lParam uintptr) error
}

// Clipboard reads the system clipboard.
type Clipboard interface {
	// ReadClipboardText returns the clipboard's text, or an error wrapping
	// ErrClipboardBusy when it cannot be opened.
	ReadClipboardText(ctx context.Context) (string, error)
}

// Capturer renders a control to an image.
type Capturer interface {
	// CaptureImage returns the control's current pixels encoded as PNG.
	CaptureImage(ctx context.Context, c Control) ([]byte, error)
}

// Driver is the full native-UI capability set.
type Driver interface {
	Locator
	Window
	Input
	Clipboard
	Capturer
}

// BringToFront restores c if it is minimized, otherwise brings it to the
// foreground. Copy and save commands only act on the foreground window.
func BringToFront(ctx context.Context, w Window, c Control) error {
	minimized, err := w.IsMinimized(ctx, c)
	if err != nil {
		return fmt.Errorf("check minimized state of %s: %w", c, err)
	}
	if minimized {
		if err := w.Restore(ctx, c); err != nil {
			return fmt.Errorf("restore %s: %w", c, err)
		}
		return nil
	}
	if err := w.Foreground(ctx, c); err != nil {
		return fmt.Errorf("foreground %s: %w", c, err)
	}
	return nil
}
