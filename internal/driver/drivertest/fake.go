// Package drivertest provides an in-memory driver.Driver for tests.
package drivertest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nao1215/gridextract/internal/driver"
)

// Call is one recorded driver call.
type Call struct {
	Method  string
	Control driver.Control
	Arg     string
}

// Fake is a programmable driver.Driver. Controls are looked up by exact
// matcher, so tests register the same matchers the code under test uses.
// Hooks run after the call is recorded and may change the fake's state.
type Fake struct {
	mu sync.Mutex

	grids     map[int]driver.Control
	top       driver.Control
	inTop     map[driver.Matcher]driver.Control
	dialogs   map[driver.Matcher]bool
	texts     map[uintptr]string
	disabled  map[uintptr]bool
	notReady  map[uintptr]bool
	minimized bool
	popDialog bool
	clipboard []ClipboardRead
	image     []byte
	calls     []Call
	next      uintptr

	// OnSendKeys runs after SendKeys is recorded.
	OnSendKeys func(c driver.Control, keys string) error
	// OnSetText runs after SetText is recorded.
	OnSetText func(c driver.Control, text string) error
	// OnClick runs after Click is recorded.
	OnClick func(c driver.Control) error
	// OnPostMessage runs after PostMessage is recorded.
	OnPostMessage func(c driver.Control, msg uint32, wParam, lParam uintptr) error
	// OnCapture replaces the default image returned by CaptureImage.
	OnCapture func(c driver.Control) ([]byte, error)
}

// ClipboardRead is the result of one ReadClipboardText call.
type ClipboardRead struct {
	Text string
	Err  error
}

// New creates an empty Fake with a top window.
func New() *Fake {
	return &Fake{
		top:      driver.Control{Handle: 0x1, Class: "#32770", Title: "top"},
		grids:    make(map[int]driver.Control),
		inTop:    make(map[driver.Matcher]driver.Control),
		dialogs:  make(map[driver.Matcher]bool),
		texts:    make(map[uintptr]string),
		disabled: make(map[uintptr]bool),
		notReady: make(map[uintptr]bool),
		image:    []byte("png"),
	}
}

// AddGrid registers a grid control under id and returns it.
func (f *Fake) AddGrid(id int) driver.Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := driver.Control{Handle: uintptr(0x1000 + id), ID: id, Class: driver.GridClass}
	f.grids[id] = c
	return c
}

// AddMainControl registers a main-window control found by LocateControl.
func (f *Fake) AddMainControl(id int, class string) driver.Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := driver.Control{Handle: uintptr(0x2000 + id), ID: id, Class: class}
	f.grids[id] = c
	return c
}

// Put registers a control found by FindInTop with m. Its text is set to
// text so WindowText succeeds.
func (f *Fake) Put(m driver.Matcher, text string) driver.Control {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	c := driver.Control{
		Handle: 0x3000 + f.next,
		ID:     m.ControlID,
		Class:  m.Class,
		Title:  text,
	}
	f.inTop[m] = c
	f.texts[c.Handle] = text
	return c
}

// Remove unregisters the control found with m, as if its dialog closed.
func (f *Fake) Remove(m driver.Matcher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.inTop[m]; ok {
		delete(f.texts, c.Handle)
	}
	delete(f.inTop, m)
}

// SetDialog controls what DialogExists reports for m.
func (f *Fake) SetDialog(m driver.Matcher, exists bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialogs[m] = exists
}

// SetPopDialog controls PopDialogExists.
func (f *Fake) SetPopDialog(exists bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.popDialog = exists
}

// SetMinimized controls IsMinimized for every control.
func (f *Fake) SetMinimized(minimized bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minimized = minimized
}

// SetEnabled controls IsEnabled for c.
func (f *Fake) SetEnabled(c driver.Control, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled[c.Handle] = !enabled
}

// SetReady controls WaitReady for c.
func (f *Fake) SetReady(c driver.Control, ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notReady[c.Handle] = !ready
}

// QueueClipboard appends results for successive clipboard reads. Once the
// queue is drained the last result repeats.
func (f *Fake) QueueClipboard(reads ...ClipboardRead) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clipboard = append(f.clipboard, reads...)
}

// SetImage sets the bytes CaptureImage returns.
func (f *Fake) SetImage(image []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = image
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Count returns how many times method was called.
func (f *Fake) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Called reports whether method was called with arg.
func (f *Fake) Called(method, arg string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Method == method && c.Arg == arg {
			return true
		}
	}
	return false
}

func (f *Fake) record(method string, c driver.Control, arg string) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Control: c, Arg: arg})
	f.mu.Unlock()
}

// LocateControl implements driver.Locator.
func (f *Fake) LocateControl(_ context.Context, id int, class string) (driver.Control, error) {
	f.record("LocateControl", driver.Control{ID: id, Class: class}, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.grids[id]
	if !ok || c.Class != class {
		return driver.Control{}, fmt.Errorf("%w: id=%d class=%s", driver.ErrControlNotFound, id, class)
	}
	return c, nil
}

// TopWindow implements driver.Locator.
func (f *Fake) TopWindow(context.Context) (driver.Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.top, nil
}

// FindInTop implements driver.Locator.
func (f *Fake) FindInTop(_ context.Context, m driver.Matcher) (driver.Control, error) {
	f.record("FindInTop", driver.Control{}, m.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.inTop[m]
	if !ok {
		return driver.Control{}, fmt.Errorf("%w: %s", driver.ErrControlNotFound, m)
	}
	return c, nil
}

// DialogExists implements driver.Locator. It does not wait.
func (f *Fake) DialogExists(_ context.Context, m driver.Matcher, _ time.Duration) bool {
	f.record("DialogExists", driver.Control{}, m.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialogs[m]
}

// PopDialogExists implements driver.Locator.
func (f *Fake) PopDialogExists(context.Context) bool {
	f.record("PopDialogExists", driver.Control{}, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.popDialog
}

// Foreground implements driver.Window.
func (f *Fake) Foreground(_ context.Context, c driver.Control) error {
	f.record("Foreground", c, "")
	return nil
}

// IsMinimized implements driver.Window.
func (f *Fake) IsMinimized(_ context.Context, c driver.Control) (bool, error) {
	f.record("IsMinimized", c, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.minimized, nil
}

// Restore implements driver.Window.
func (f *Fake) Restore(_ context.Context, c driver.Control) error {
	f.record("Restore", c, "")
	return nil
}

// Click implements driver.Window.
func (f *Fake) Click(_ context.Context, c driver.Control) error {
	f.record("Click", c, c.Title)
	if f.OnClick != nil {
		return f.OnClick(c)
	}
	return nil
}

// SetText implements driver.Window.
func (f *Fake) SetText(_ context.Context, c driver.Control, text string) error {
	f.record("SetText", c, text)
	if f.OnSetText != nil {
		return f.OnSetText(c, text)
	}
	return nil
}

// WindowText implements driver.Window. It fails for unregistered controls.
func (f *Fake) WindowText(_ context.Context, c driver.Control) (string, error) {
	f.record("WindowText", c, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.texts[c.Handle]
	if !ok {
		return "", fmt.Errorf("%w: %s", driver.ErrControlNotFound, c)
	}
	return text, nil
}

// IsEnabled implements driver.Window.
func (f *Fake) IsEnabled(_ context.Context, c driver.Control) (bool, error) {
	f.record("IsEnabled", c, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.disabled[c.Handle], nil
}

// WaitReady implements driver.Window. It does not wait.
func (f *Fake) WaitReady(_ context.Context, c driver.Control, _ time.Duration) error {
	f.record("WaitReady", c, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notReady[c.Handle] {
		return fmt.Errorf("%w: %s", driver.ErrNotReady, c)
	}
	return nil
}

// SendKeys implements driver.Input.
func (f *Fake) SendKeys(_ context.Context, c driver.Control, keys string) error {
	f.record("SendKeys", c, keys)
	if f.OnSendKeys != nil {
		return f.OnSendKeys(c, keys)
	}
	return nil
}

// PostMessage implements driver.Input.
func (f *Fake) PostMessage(_ context.Context, c driver.Control, msg uint32, wParam, lParam uintptr) error {
	f.record("PostMessage", c, fmt.Sprintf("0x%x:0x%x:0x%x", msg, wParam, lParam))
	if f.OnPostMessage != nil {
		return f.OnPostMessage(c, msg, wParam, lParam)
	}
	return nil
}

// ReadClipboardText implements driver.Clipboard. With nothing queued it
// reports driver.ErrClipboardBusy.
func (f *Fake) ReadClipboardText(context.Context) (string, error) {
	f.record("ReadClipboardText", driver.Control{}, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clipboard) == 0 {
		return "", driver.ErrClipboardBusy
	}
	r := f.clipboard[0]
	if len(f.clipboard) > 1 {
		f.clipboard = f.clipboard[1:]
	}
	return r.Text, r.Err
}

// CaptureImage implements driver.Capturer.
func (f *Fake) CaptureImage(_ context.Context, c driver.Control) ([]byte, error) {
	f.record("CaptureImage", c, "")
	if f.OnCapture != nil {
		return f.OnCapture(c)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.image), nil
}

var _ driver.Driver = (*Fake)(nil)
