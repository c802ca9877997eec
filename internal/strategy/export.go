package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nao1215/gridextract/internal/driver"
	"github.com/nao1215/gridextract/internal/model"
	"github.com/nao1215/gridextract/internal/poll"
	"github.com/nao1215/gridextract/internal/session"
	"github.com/nao1215/gridextract/internal/tabular"
)

// Controls of the client's "save as" dialog.
var (
	savePathField  = driver.ByIndex("Edit", 1)
	popCloseButton = driver.ByIndex("Button", 2)
)

// FileExport saves the grid with Ctrl+S and parses the saved file. The
// client writes GBK tab-delimited text under an .xls name; real workbooks
// are read too.
type FileExport struct {
	base
}

// NewFileExport creates a FileExport strategy.
func NewFileExport(opts ...Option) *FileExport {
	return &FileExport{base: newBase(opts)}
}

// Name returns "xls".
func (s *FileExport) Name() string {
	return NameXls
}

// Extract implements Strategy. The export file is removed before returning.
func (s *FileExport) Extract(ctx context.Context, _ *session.Session, gridID int) (*model.Result, error) {
	d, err := s.boundDriver()
	if err != nil {
		return nil, err
	}
	grid, err := s.grid(ctx, d, gridID)
	if err != nil {
		return nil, err
	}

	s.foreground(ctx, d, grid)
	if err := d.Click(ctx, grid); err != nil {
		return nil, fmt.Errorf("click grid %d: %w", gridID, err)
	}
	if err := d.SendKeys(ctx, grid, driver.KeysSave); err != nil {
		return nil, fmt.Errorf("send save keys to grid %d: %w", gridID, err)
	}

	if err := s.waitForDialog(ctx, d); err != nil {
		return nil, err
	}

	path, err := s.exportPath()
	if err != nil {
		return nil, err
	}
	defer s.removeExport(path)

	if err := s.save(ctx, d, path); err != nil {
		return nil, err
	}
	if err := s.waitForFile(ctx, path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}
	records, err := tabular.ParseExport(data, s.opts.schema)
	if err != nil {
		return nil, fmt.Errorf("grid %d: %w", gridID, err)
	}

	res := model.NewResult(records)
	res.Raw = data
	return res, nil
}

// waitForDialog polls for the save dialog.
func (s *FileExport) waitForDialog(ctx context.Context, d driver.Driver) error {
	err := poll.Until(ctx, s.opts.dialogTimeout, s.opts.pollInterval, func(ctx context.Context) (bool, error) {
		return d.PopDialogExists(ctx), nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return fmt.Errorf("%w: save dialog: %w", ErrExportTimeout, err)
	}
	return err
}

// save fills in the dialog's path field and confirms, replacing an
// existing file if the client asks.
func (s *FileExport) save(ctx context.Context, d driver.Driver, path string) error {
	top, err := d.TopWindow(ctx)
	if err != nil {
		return fmt.Errorf("find save dialog: %w", err)
	}
	s.foreground(ctx, d, top)

	field, err := d.FindInTop(ctx, savePathField)
	if err != nil {
		return fmt.Errorf("find save path field: %w", err)
	}
	if err := d.SetText(ctx, field, path); err != nil {
		return fmt.Errorf("set save path: %w", err)
	}
	if err := poll.Sleep(ctx, pathSettleDelay); err != nil {
		return err
	}

	if err := d.SendKeys(ctx, top, driver.KeysSaveOverwrite); err != nil {
		return fmt.Errorf("confirm save dialog: %w", err)
	}
	if err := poll.Sleep(ctx, saveSettleDelay); err != nil {
		return err
	}

	if d.PopDialogExists(ctx) {
		btn, err := d.FindInTop(ctx, popCloseButton)
		if err != nil {
			s.logger().Debug("pop dialog has no second button", "error", err)
			return nil
		}
		if err := d.Click(ctx, btn); err != nil {
			s.logger().Debug("failed to close pop dialog", "error", err)
			return nil
		}
		return poll.Sleep(ctx, saveSettleDelay)
	}
	return nil
}
