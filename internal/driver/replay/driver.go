package replay

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/nao1215/gridextract/internal/driver"
	"github.com/nao1215/gridextract/internal/poll"
	"github.com/nao1215/gridextract/internal/tabular"
)

// DefaultPollInterval is how often DialogExists re-checks the dialog stack.
const DefaultPollInterval = 20 * time.Millisecond

// captchaClipboard is what a copy puts on the clipboard while the
// challenge dialog is in front of the grid.
const captchaClipboard = "提示\n请输入验证码\t确定\t取消\n"

type dialogKind int

const (
	saveDialog dialogKind = iota + 1
	reportDialog
	captchaDialog
)

// window is an open modal dialog.
type window struct {
	kind     dialogKind
	self     driver.Control
	controls []driver.Control
	grid     *Grid
}

// Driver is a scripted driver.Driver.
type Driver struct {
	logger       *slog.Logger
	pollInterval time.Duration

	mu           sync.Mutex
	fixture      Fixture
	nextHandle   uintptr
	main         driver.Control
	children     map[int]driver.Control
	grids        map[uintptr]*Grid
	reports      map[uintptr]*Report
	minimized    map[uintptr]bool
	texts        map[uintptr]string
	stack        []*window
	clipboard    string
	hasClipboard bool
	pending      string
	clipFailures int
	captchaLeft  int
	solved       bool
	image        []byte
	exports      []string
	refreshes    int
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithPollInterval sets the DialogExists polling interval.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Driver) {
		d.pollInterval = interval
	}
}

// New creates a Driver for fx.
func New(fx *Fixture, opts ...Option) (*Driver, error) {
	if err := fx.Validate(); err != nil {
		return nil, err
	}

	d := &Driver{
		pollInterval: DefaultPollInterval,
		fixture:      *fx,
		children:     make(map[int]driver.Control),
		grids:        make(map[uintptr]*Grid),
		reports:      make(map[uintptr]*Report),
		minimized:    make(map[uintptr]bool),
		texts:        make(map[uintptr]string),
		clipFailures: fx.ClipboardFailures,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	d.main = d.alloc(0, "TdxW_MainFrame_Class", "网上股票交易系统")
	for i := range d.fixture.Grids {
		g := &d.fixture.Grids[i]
		c := d.alloc(g.ID, driver.GridClass, "")
		d.children[g.ID] = c
		d.grids[c.Handle] = g
		d.minimized[c.Handle] = fx.Minimized
	}
	for i := range d.fixture.Reports {
		r := &d.fixture.Reports[i]
		c := d.alloc(r.ButtonID, "Button", "输出")
		d.children[r.ButtonID] = c
		d.reports[c.Handle] = r
	}

	if fx.Captcha != nil {
		d.captchaLeft = fx.Captcha.Rounds
		img, err := captchaImage(fx.Captcha.Image)
		if err != nil {
			return nil, err
		}
		d.image = img
	}
	return d, nil
}

// captchaImage loads the configured image or renders a blank one.
func captchaImage(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // User-provided fixture path is intentional
		if err != nil {
			return nil, fmt.Errorf("read captcha image: %w", err)
		}
		return data, nil
	}

	img := image.NewGray(image.Rect(0, 0, 60, 20))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetGray(0, 0, color.Gray{Y: 0})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render captcha image: %w", err)
	}
	return buf.Bytes(), nil
}

// Exports returns the paths of every file the scripted client wrote.
func (d *Driver) Exports() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.exports...)
}

// Refreshes returns how many times the captcha image was clicked.
func (d *Driver) Refreshes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshes
}

func (d *Driver) alloc(id int, class, title string) driver.Control {
	d.nextHandle++
	c := driver.Control{Handle: 0x10000 + d.nextHandle, ID: id, Class: class, Title: title}
	d.texts[c.Handle] = title
	return c
}

func (d *Driver) top() *window {
	if len(d.stack) == 0 {
		return nil
	}
	return d.stack[len(d.stack)-1]
}

// push opens a dialog. Controls are given in tab order.
func (d *Driver) push(kind dialogKind, title string, controls ...driver.Control) *window {
	w := &window{
		kind:     kind,
		self:     d.alloc(0, "#32770", title),
		controls: controls,
	}
	d.stack = append(d.stack, w)
	d.logger.Debug("replay dialog opened", "title", title)
	return w
}

func (d *Driver) pop() {
	w := d.top()
	if w == nil {
		return
	}
	d.stack = d.stack[:len(d.stack)-1]
	delete(d.texts, w.self.Handle)
	for _, c := range w.controls {
		delete(d.texts, c.Handle)
	}
	d.logger.Debug("replay dialog closed", "title", w.self.Title)
}

// alive reports whether c belongs to the main window or an open dialog.
func (d *Driver) alive(c driver.Control) bool {
	if c.Handle == d.main.Handle {
		return true
	}
	if child, ok := d.children[c.ID]; ok && child.Handle == c.Handle {
		return true
	}
	for _, w := range d.stack {
		if w.self.Handle == c.Handle {
			return true
		}
		for _, wc := range w.controls {
			if wc.Handle == c.Handle {
				return true
			}
		}
	}
	return false
}

// topControls lists the controls of the top window in tab order.
func (d *Driver) topControls() []driver.Control {
	if w := d.top(); w != nil {
		return w.controls
	}
	ids := make([]int, 0, len(d.children))
	for id := range d.children {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]driver.Control, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.children[id])
	}
	return out
}

func (d *Driver) findInTop(m driver.Matcher) (driver.Control, error) {
	index := make(map[string]int)
	for _, c := range d.topControls() {
		index[c.Class]++
		c.Title = d.texts[c.Handle]
		ok, err := m.Match(c, index[c.Class])
		if err != nil {
			return driver.Control{}, err
		}
		if ok {
			return c, nil
		}
	}
	return driver.Control{}, fmt.Errorf("%w: %s in top window", driver.ErrControlNotFound, m)
}

// captchaActive reports whether the next copy raises the challenge.
func (d *Driver) captchaActive() bool {
	cf := d.fixture.Captcha
	if cf == nil {
		return false
	}
	if cf.Rounds == 0 {
		return !d.solved
	}
	return d.captchaLeft > 0
}

// copyGrid is the client's reaction to a copy command on a grid.
func (d *Driver) copyGrid(g *Grid) {
	if d.captchaActive() {
		if w := d.top(); w == nil || w.kind != captchaDialog {
			d.push(captchaDialog, "验证码",
				d.alloc(0, "Static", "请输入验证码"),
				d.alloc(0x965, "Static", ""),
				d.alloc(0x964, "Edit", ""),
				d.alloc(0x966, "Static", "验证码"),
				d.alloc(1, "Button", "确定"),
				d.alloc(2, "Button", "取消"),
			)
		}
		d.pending = g.Text
		d.clipboard = captchaClipboard
		d.hasClipboard = true
		return
	}
	d.clipboard = g.Text
	d.hasClipboard = true
}

// writeExport stores text GBK encoded at the path typed into field.
func (d *Driver) writeExport(field driver.Control, text string) error {
	path := d.texts[field.Handle]
	if path == "" {
		return fmt.Errorf("replay: export path field is empty")
	}
	data, err := tabular.EncodeNative(text)
	if err != nil {
		return fmt.Errorf("replay: encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("replay: write export: %w", err)
	}
	d.exports = append(d.exports, path)
	return nil
}

// LocateControl implements driver.Locator.
func (d *Driver) LocateControl(_ context.Context, id int, class string) (driver.Control, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.children[id]
	if !ok || c.Class != class {
		return driver.Control{}, fmt.Errorf("%w: id=%d class=%s", driver.ErrControlNotFound, id, class)
	}
	return c, nil
}

// TopWindow implements driver.Locator.
func (d *Driver) TopWindow(context.Context) (driver.Control, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w := d.top(); w != nil {
		return w.self, nil
	}
	return d.main, nil
}

// FindInTop implements driver.Locator.
func (d *Driver) FindInTop(_ context.Context, m driver.Matcher) (driver.Control, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findInTop(m)
}

// DialogExists implements driver.Locator.
func (d *Driver) DialogExists(ctx context.Context, m driver.Matcher, timeout time.Duration) bool {
	err := poll.Until(ctx, timeout, d.pollInterval, func(context.Context) (bool, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.top() == nil {
			return false, nil
		}
		_, err := d.findInTop(m)
		return err == nil, nil
	})
	return err == nil
}

// PopDialogExists implements driver.Locator.
func (d *Driver) PopDialogExists(context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.stack) > 0
}

// Foreground implements driver.Window.
func (d *Driver) Foreground(_ context.Context, c driver.Control) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive(c) {
		return fmt.Errorf("%w: %s", driver.ErrControlNotFound, c)
	}
	return nil
}

// IsMinimized implements driver.Window.
func (d *Driver) IsMinimized(_ context.Context, c driver.Control) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.minimized[c.Handle], nil
}

// Restore implements driver.Window.
func (d *Driver) Restore(_ context.Context, c driver.Control) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.minimized, c.Handle)
	return nil
}

// Click implements driver.Window.
func (d *Driver) Click(_ context.Context, c driver.Control) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive(c) {
		return fmt.Errorf("%w: %s", driver.ErrControlNotFound, c)
	}

	if r, ok := d.reports[c.Handle]; ok {
		if r.Disabled {
			return nil
		}
		d.push(reportDialog, "输出",
			d.alloc(0, "Button", "输出到Excel表格"),
			d.alloc(0, "Edit", "输出"),
			d.alloc(0, "Edit", ""),
			d.alloc(1, "Button", "确  定"),
			d.alloc(2, "Button", "取  消"),
		)
		d.pending = r.Text
		return nil
	}

	w := d.top()
	if w == nil {
		return nil
	}
	switch {
	case w.kind == reportDialog && d.texts[c.Handle] == "确  定":
		field := w.controls[2]
		text := d.pending
		d.pending = ""
		d.pop()
		return d.writeExport(field, text)
	case w.kind == captchaDialog && c.ID == 0x965:
		d.refreshes++
	case w.kind == captchaDialog && c.ID == 2:
		d.pop()
		d.pending = ""
		d.hasClipboard = false
	case c.Class == "Button" && c.ID == 2:
		d.pop()
	}
	return nil
}

// SetText implements driver.Window.
func (d *Driver) SetText(_ context.Context, c driver.Control, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive(c) {
		return fmt.Errorf("%w: %s", driver.ErrControlNotFound, c)
	}
	d.texts[c.Handle] = text
	return nil
}

// WindowText implements driver.Window.
func (d *Driver) WindowText(_ context.Context, c driver.Control) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive(c) {
		return "", fmt.Errorf("%w: %s", driver.ErrControlNotFound, c)
	}
	return d.texts[c.Handle], nil
}

// IsEnabled implements driver.Window.
func (d *Driver) IsEnabled(_ context.Context, c driver.Control) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive(c) {
		return false, fmt.Errorf("%w: %s", driver.ErrControlNotFound, c)
	}
	if r, ok := d.reports[c.Handle]; ok {
		return !r.Disabled, nil
	}
	return true, nil
}

// WaitReady implements driver.Window.
func (d *Driver) WaitReady(_ context.Context, c driver.Control, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive(c) {
		return fmt.Errorf("%w: %s", driver.ErrNotReady, c)
	}
	return nil
}

// SendKeys implements driver.Input.
func (d *Driver) SendKeys(_ context.Context, c driver.Control, keys string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive(c) {
		return fmt.Errorf("%w: %s", driver.ErrControlNotFound, c)
	}

	g := d.grids[c.Handle]
	w := d.top()
	switch {
	case keys == driver.KeysSelectAllCopy && g != nil:
		d.copyGrid(g)
	case keys == driver.KeysSave && g != nil && w == nil:
		sw := d.push(saveDialog, "另存为",
			d.alloc(0x47c, "Edit", ""),
			d.alloc(1, "Button", "保存(&S)"),
			d.alloc(2, "Button", "取消"),
		)
		sw.grid = g
	case keys == driver.KeysSaveOverwrite && w != nil && w.kind == saveDialog:
		field, text := w.controls[0], w.grid.Text
		if err := d.writeExport(field, text); err != nil {
			return err
		}
		d.pop()
	case keys == driver.KeysEnter && w != nil && w.kind == captchaDialog:
		d.submitCaptcha(w)
	}
	return nil
}

// submitCaptcha checks the entered code.
func (d *Driver) submitCaptcha(w *window) {
	input := w.controls[2]
	status := w.controls[3]
	if d.texts[input.Handle] != d.fixture.Captcha.Code {
		d.texts[status.Handle] = "验证码错误"
		return
	}
	d.pop()
	d.solved = true
	if d.captchaLeft > 0 {
		d.captchaLeft--
	}
	d.clipboard = d.pending
	d.pending = ""
}

// PostMessage implements driver.Input.
func (d *Driver) PostMessage(_ context.Context, c driver.Control, msg uint32, wParam, _ uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive(c) {
		return fmt.Errorf("%w: %s", driver.ErrControlNotFound, c)
	}
	if g := d.grids[c.Handle]; g != nil && msg == driver.WMCommand && wParam == driver.CmdCopy {
		d.copyGrid(g)
	}
	return nil
}

// ReadClipboardText implements driver.Clipboard.
func (d *Driver) ReadClipboardText(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.clipFailures > 0 {
		d.clipFailures--
		return "", fmt.Errorf("%w: held by another process", driver.ErrClipboardBusy)
	}
	if !d.hasClipboard {
		return "", fmt.Errorf("%w: no text", driver.ErrClipboardBusy)
	}
	return d.clipboard, nil
}

// CaptureImage implements driver.Capturer.
func (d *Driver) CaptureImage(_ context.Context, c driver.Control) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.alive(c) {
		return nil, fmt.Errorf("%w: %s", driver.ErrControlNotFound, c)
	}
	if d.image == nil {
		return nil, fmt.Errorf("replay: nothing to capture for %s", c)
	}
	return append([]byte(nil), d.image...), nil
}

var _ driver.Driver = (*Driver)(nil)
