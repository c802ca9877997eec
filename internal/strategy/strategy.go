package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/gridextract/internal/driver"
	"github.com/nao1215/gridextract/internal/model"
	"github.com/nao1215/gridextract/internal/session"
)

// Strategy names accepted by New.
const (
	NameCopy   = "copy"
	NameWMCopy = "wmcopy"
	NameXls    = "xls"
	NameTDXXls = "tdxxls"
)

// Strategy extracts the contents of one grid.
type Strategy interface {
	// Name returns the strategy name.
	Name() string

	// BindDriver sets the driver Extract acts through.
	BindDriver(d driver.Driver)

	// Extract reads the grid identified by gridID. For tdxxls gridID is the
	// control id of the report export button instead. The clipboard
	// strategies need sess for the captcha flag and return
	// session.ErrNoSession without it; the export strategies ignore it.
	Extract(ctx context.Context, sess *session.Session, gridID int) (*model.Result, error)
}

// Names returns every supported strategy name.
func Names() []string {
	return []string{NameCopy, NameWMCopy, NameXls, NameTDXXls}
}

// New creates the strategy called name.
func New(name string, opts ...Option) (Strategy, error) {
	switch name {
	case NameCopy:
		return NewClipboardCopy(opts...), nil
	case NameWMCopy:
		return NewWindowMessageCopy(opts...), nil
	case NameXls:
		return NewFileExport(opts...), nil
	case NameTDXXls:
		return NewMultiSectionFileExport(opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// base carries what every strategy shares.
type base struct {
	opts options

	mu     sync.RWMutex
	driver driver.Driver
}

func newBase(opts []Option) base {
	return base{opts: newOptions(opts)}
}

func (b *base) logger() *slog.Logger {
	return b.opts.logger
}

// BindDriver sets the driver.
func (b *base) BindDriver(d driver.Driver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.driver = d
}

// boundDriver returns the driver set by BindDriver.
func (b *base) boundDriver() (driver.Driver, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.driver == nil {
		return nil, ErrDriverNotBound
	}
	return b.driver, nil
}

// grid locates the grid control with id in the client's main window.
func (b *base) grid(ctx context.Context, d driver.Driver, id int) (driver.Control, error) {
	c, err := d.LocateControl(ctx, id, driver.GridClass)
	if err != nil {
		return driver.Control{}, fmt.Errorf("locate grid %d: %w", id, err)
	}
	return c, nil
}

// foreground brings c to the front. Failures are logged and ignored: the
// following keystrokes often still land.
func (b *base) foreground(ctx context.Context, d driver.Driver, c driver.Control) {
	if err := driver.BringToFront(ctx, d, c); err != nil {
		b.logger().Debug("failed to bring window to front", "control", c.String(), "error", err)
	}
}
