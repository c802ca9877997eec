package strategy

import (
	"context"
	"fmt"
	"os"

	"github.com/nao1215/gridextract/internal/driver"
	"github.com/nao1215/gridextract/internal/model"
	"github.com/nao1215/gridextract/internal/session"
	"github.com/nao1215/gridextract/internal/tabular"
)

// Controls of the client's report export dialog.
var (
	excelOutputButton = driver.ByTitle("输出到Excel表格")
	reportPathField   = driver.ByIndex("Edit", 2)
	reportOKButton    = driver.ByTitle("确  定")
)

// MultiSectionFileExport presses a report export button and parses the
// written file. In report mode the file holds a one-row summary block
// followed by a detail table; otherwise it is a single table.
type MultiSectionFileExport struct {
	base
}

// NewMultiSectionFileExport creates a MultiSectionFileExport strategy.
func NewMultiSectionFileExport(opts ...Option) *MultiSectionFileExport {
	return &MultiSectionFileExport{base: newBase(opts)}
}

// Name returns "tdxxls".
func (s *MultiSectionFileExport) Name() string {
	return NameTDXXls
}

// Extract implements Strategy. buttonID is the control id of the export
// button in the client's main window. A disabled button yields
// ErrExportDisabled. The export file is removed before returning.
func (s *MultiSectionFileExport) Extract(ctx context.Context, _ *session.Session, buttonID int) (*model.Result, error) {
	d, err := s.boundDriver()
	if err != nil {
		return nil, err
	}
	button, err := s.exportButton(ctx, d, buttonID)
	if err != nil {
		return nil, err
	}

	enabled, err := d.IsEnabled(ctx, button)
	if err != nil {
		return nil, fmt.Errorf("check export button %d: %w", buttonID, err)
	}
	if !enabled {
		return nil, fmt.Errorf("%w: button %d", ErrExportDisabled, buttonID)
	}
	if err := d.Click(ctx, button); err != nil {
		return nil, fmt.Errorf("click export button %d: %w", buttonID, err)
	}

	path, err := s.exportPath()
	if err != nil {
		return nil, err
	}
	defer s.removeExport(path)

	if err := s.clickInTop(ctx, d, excelOutputButton); err != nil {
		return nil, err
	}
	field, err := d.FindInTop(ctx, reportPathField)
	if err != nil {
		return nil, fmt.Errorf("find export path field: %w", err)
	}
	if err := d.SetText(ctx, field, path); err != nil {
		return nil, fmt.Errorf("set export path: %w", err)
	}
	if err := s.clickInTop(ctx, d, reportOKButton); err != nil {
		return nil, err
	}

	if err := s.waitForFile(ctx, path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}

	res, err := s.parse(data)
	if err != nil {
		return nil, fmt.Errorf("export button %d: %w", buttonID, err)
	}
	res.Raw = data
	return res, nil
}

// exportButton finds the export button, waiting for it to become ready.
// When it never does, the button is returned anyway once the attempts
// are used up.
func (s *MultiSectionFileExport) exportButton(ctx context.Context, d driver.Driver, id int) (driver.Control, error) {
	for attempt := 1; attempt <= s.opts.handleAttempts; attempt++ {
		button, err := d.LocateControl(ctx, id, "Button")
		if err == nil {
			err = d.WaitReady(ctx, button, s.opts.handleReadyTimeout)
			if err == nil {
				return button, nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return driver.Control{}, ctxErr
		}
		s.logger().Debug("export button not ready, retrying", "id", id, "attempt", attempt, "error", err)
	}

	button, err := d.LocateControl(ctx, id, "Button")
	if err != nil {
		return driver.Control{}, fmt.Errorf("locate export button %d: %w", id, err)
	}
	return button, nil
}

func (s *MultiSectionFileExport) clickInTop(ctx context.Context, d driver.Driver, m driver.Matcher) error {
	c, err := d.FindInTop(ctx, m)
	if err != nil {
		return fmt.Errorf("find %q: %w", m.Title, err)
	}
	if err := d.Click(ctx, c); err != nil {
		return fmt.Errorf("click %q: %w", m.Title, err)
	}
	return nil
}

// parse reads the export text in report or single-table mode.
func (s *MultiSectionFileExport) parse(data []byte) (*model.Result, error) {
	lines := tabular.SplitReportLines(tabular.DecodeNative(data))

	if !s.opts.reportMode {
		records, err := tabular.ParseCommon(lines)
		if err != nil {
			return nil, err
		}
		records = s.withHeader(records)
		if err := tabular.ApplySchema(records, s.opts.schema); err != nil {
			return nil, err
		}
		return model.NewResult(records), nil
	}

	summary, details, err := tabular.ParseMultiSection(lines)
	if err != nil {
		return nil, err
	}
	details = s.withHeader(details)
	if err := tabular.ApplySchema(details, s.opts.schema); err != nil {
		return nil, err
	}
	summaries := []model.Record{summary}
	if err := tabular.ApplySchema(summaries, s.opts.schema); err != nil {
		return nil, err
	}
	return model.NewReportResult(summaries[0], details), nil
}

// withHeader renames the columns of records to the configured header,
// position by position. Records are returned unchanged without one.
func (s *MultiSectionFileExport) withHeader(records []model.Record) []model.Record {
	if len(s.opts.header) == 0 {
		return records
	}
	renamed := make([]model.Record, 0, len(records))
	for _, r := range records {
		values := make([]string, 0, r.Len())
		for _, column := range r.Columns() {
			values = append(values, r.String(column))
		}
		renamed = append(renamed, model.RecordFrom(s.opts.header, values))
	}
	return renamed
}

// ParseReport parses report export bytes the way MultiSectionFileExport
// does after a save. WithReportMode, WithHeader and WithSchema apply.
func ParseReport(data []byte, opts ...Option) (*model.Result, error) {
	res, err := NewMultiSectionFileExport(opts...).parse(data)
	if err != nil {
		return nil, err
	}
	res.Raw = data
	return res, nil
}
