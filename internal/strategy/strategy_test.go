package strategy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/gridextract/internal/captcha"
	"github.com/nao1215/gridextract/internal/driver"
	"github.com/nao1215/gridextract/internal/driver/drivertest"
	"github.com/nao1215/gridextract/internal/model"
	"github.com/nao1215/gridextract/internal/recognize"
	"github.com/nao1215/gridextract/internal/session"
	"github.com/nao1215/gridextract/internal/tabular"
)

const testGridID = 0x417

// fastOptions keep polling tests short.
func fastOptions(dir string) []Option {
	return []Option{
		WithTempDir(dir),
		WithPollInterval(5 * time.Millisecond),
		WithDialogTimeout(30 * time.Millisecond),
		WithFileTimeout(30 * time.Millisecond),
		WithCopyDelay(0),
		WithHandleReadyTimeout(0),
	}
}

// TestNew tests strategy selection by name.
func TestNew(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, err := New(name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.Name() != name {
				t.Errorf("Name() = %q, expected %q", s.Name(), name)
			}
		})
	}

	t.Run("unknown name", func(t *testing.T) {
		t.Parallel()

		if _, err := New("ocr"); !errors.Is(err, ErrUnknownStrategy) {
			t.Errorf("expected ErrUnknownStrategy, got %v", err)
		}
	})
}

// TestExtractPreconditions tests errors raised before the UI is touched.
func TestExtractPreconditions(t *testing.T) {
	t.Parallel()

	for _, name := range Names() {
		t.Run(name+" without driver", func(t *testing.T) {
			t.Parallel()

			s, err := New(name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, err = s.Extract(context.Background(), session.New(nil), testGridID)
			if !errors.Is(err, ErrDriverNotBound) {
				t.Errorf("expected ErrDriverNotBound, got %v", err)
			}
		})

		t.Run(name+" with missing control", func(t *testing.T) {
			t.Parallel()

			f := drivertest.New()
			s, err := New(name, fastOptions(t.TempDir())...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			s.BindDriver(f)
			_, err = s.Extract(context.Background(), session.New(f), testGridID)
			if !errors.Is(err, driver.ErrControlNotFound) {
				t.Errorf("expected ErrControlNotFound, got %v", err)
			}
		})
	}
}

// TestClipboardCopy tests keystroke copying.
func TestClipboardCopy(t *testing.T) {
	t.Parallel()

	t.Run("parses clipboard text", func(t *testing.T) {
		t.Parallel()

		f := drivertest.New()
		grid := f.AddGrid(testGridID)
		f.SetMinimized(true)
		f.QueueClipboard(drivertest.ClipboardRead{Text: "Code\tQty\r\n600000\t100\r\n"})

		s := NewClipboardCopy(WithSchema(model.Schema{"Qty": model.FieldInt}))
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f, session.WithCaptchaRequired(false)), testGridID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Len() != 1 {
			t.Fatalf("expected 1 record, got %d", res.Len())
		}
		if got := res.Records[0].String("Code"); got != "600000" {
			t.Errorf("Code = %q, expected %q", got, "600000")
		}
		if got, _ := res.Records[0].Get("Qty"); got != int64(100) {
			t.Errorf("Qty = %#v, expected int64(100)", got)
		}
		if len(res.Raw) == 0 {
			t.Error("expected raw clipboard text")
		}
		if f.Count("Restore") != 1 {
			t.Error("expected minimized grid to be restored")
		}
		calls := f.Calls()
		found := false
		for _, c := range calls {
			if c.Method == "SendKeys" && c.Arg == driver.KeysSelectAllCopy && c.Control == grid {
				found = true
			}
		}
		if !found {
			t.Error("expected select-all copy keys sent to the grid")
		}
	})

	t.Run("empty grid is an empty result", func(t *testing.T) {
		t.Parallel()

		f := drivertest.New()
		f.AddGrid(testGridID)
		f.QueueClipboard(drivertest.ClipboardRead{Text: "Code\tQty\n"})
		s := NewClipboardCopy()
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f), testGridID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Empty() {
			t.Errorf("expected empty result, got %d records", res.Len())
		}
	})

	t.Run("nil session is rejected", func(t *testing.T) {
		t.Parallel()

		for _, s := range []Strategy{NewClipboardCopy(), NewWindowMessageCopy()} {
			f := drivertest.New()
			f.AddGrid(testGridID)
			s.BindDriver(f)

			_, err := s.Extract(context.Background(), nil, testGridID)
			if !errors.Is(err, session.ErrNoSession) {
				t.Errorf("%s: expected ErrNoSession, got %v", s.Name(), err)
			}
			if n := f.Count("ReadClipboardText"); n != 0 {
				t.Errorf("%s: expected no clipboard reads, got %d", s.Name(), n)
			}
		}
	})

	t.Run("busy driver clipboard surfaces as unavailable", func(t *testing.T) {
		t.Parallel()

		f := drivertest.New()
		f.AddGrid(testGridID)
		f.QueueClipboard(drivertest.ClipboardRead{Err: driver.ErrClipboardBusy})
		s := NewClipboardCopy(WithClipboardAttempts(2))
		s.BindDriver(f)

		_, err := s.Extract(context.Background(), session.New(f), testGridID)
		if !errors.Is(err, ErrClipboardUnavailable) || !errors.Is(err, driver.ErrClipboardBusy) {
			t.Fatalf("expected both clipboard errors in chain, got %v", err)
		}
		if errors.Is(driver.ErrClipboardBusy, ErrClipboardUnavailable) {
			t.Error("driver and strategy clipboard errors must be distinct")
		}
		if !IsRetryable(err) {
			t.Error("expected exhausted clipboard to be retryable")
		}
	})

	t.Run("clipboard read stops after five attempts", func(t *testing.T) {
		t.Parallel()

		f := drivertest.New()
		f.AddGrid(testGridID)
		f.QueueClipboard(drivertest.ClipboardRead{Err: driver.ErrClipboardBusy})
		s := NewClipboardCopy()
		s.BindDriver(f)

		_, err := s.Extract(context.Background(), session.New(f), testGridID)
		if !errors.Is(err, ErrClipboardUnavailable) {
			t.Fatalf("expected ErrClipboardUnavailable, got %v", err)
		}
		if n := f.Count("ReadClipboardText"); n != DefaultClipboardAttempts {
			t.Errorf("expected %d clipboard reads, got %d", DefaultClipboardAttempts, n)
		}
	})

	t.Run("transient clipboard failure is absorbed", func(t *testing.T) {
		t.Parallel()

		f := drivertest.New()
		f.AddGrid(testGridID)
		f.QueueClipboard(
			drivertest.ClipboardRead{Err: driver.ErrClipboardBusy},
			drivertest.ClipboardRead{Err: driver.ErrClipboardBusy},
			drivertest.ClipboardRead{Text: "a\tb\n1\t2\n"},
		)
		s := NewClipboardCopy()
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f), testGridID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Len() != 1 {
			t.Errorf("expected 1 record, got %d", res.Len())
		}
		if n := f.Count("ReadClipboardText"); n != 3 {
			t.Errorf("expected 3 clipboard reads, got %d", n)
		}
	})

	t.Run("malformed text flags the session", func(t *testing.T) {
		t.Parallel()

		f := drivertest.New()
		f.AddGrid(testGridID)
		f.QueueClipboard(drivertest.ClipboardRead{Text: "提示\n请输入验证码\t确定\t取消\n"})
		s := NewClipboardCopy()
		s.BindDriver(f)
		sess := session.New(f, session.WithCaptchaRequired(false))

		res, err := s.Extract(context.Background(), sess, testGridID)
		if !errors.Is(err, tabular.ErrMalformedTable) {
			t.Fatalf("expected ErrMalformedTable, got %v", err)
		}
		if res != nil {
			t.Errorf("expected no result, got %+v", res)
		}
		if !sess.CaptchaRequired() {
			t.Error("expected captcha flag to be set")
		}
		if !IsRetryable(err) {
			t.Error("expected malformed clipboard text to be retryable")
		}
	})
}

// TestClipboardCopyCaptcha tests the captcha step of the clipboard pipeline.
func TestClipboardCopyCaptcha(t *testing.T) {
	t.Parallel()

	t.Run("no dialog clears the flag", func(t *testing.T) {
		t.Parallel()

		f := drivertest.New()
		f.AddGrid(testGridID)
		f.QueueClipboard(drivertest.ClipboardRead{Text: "a\tb\n1\t2\n"})
		rec := recognize.Func(func(context.Context, []byte) (string, error) {
			t.Error("recognizer must not be called")
			return "", nil
		})
		s := NewClipboardCopy(WithCaptchaHandler(captcha.NewHandler(rec)))
		s.BindDriver(f)
		sess := session.New(f)

		if _, err := s.Extract(context.Background(), sess, testGridID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sess.CaptchaRequired() {
			t.Error("expected captcha flag to be cleared")
		}
	})

	t.Run("unsolved captcha yields no result", func(t *testing.T) {
		t.Parallel()

		f := drivertest.New()
		f.AddGrid(testGridID)
		f.SetDialog(captcha.DialogMatcher, true)
		f.Put(captcha.ImageControl, "")
		f.Put(captcha.CancelControl, "取消")
		f.QueueClipboard(drivertest.ClipboardRead{Text: "a\tb\n1\t2\n"})
		rec := recognize.Func(func(context.Context, []byte) (string, error) {
			return "12", nil
		})
		h := captcha.NewHandler(rec, captcha.WithMaxAttempts(2), captcha.WithRefreshDelay(0))
		s := NewClipboardCopy(WithCaptchaHandler(h))
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f), testGridID)
		if !errors.Is(err, captcha.ErrCaptchaUnsolved) {
			t.Fatalf("expected ErrCaptchaUnsolved, got %v", err)
		}
		if res != nil {
			t.Errorf("expected no result, got %+v", res)
		}
		if f.Count("ReadClipboardText") != 0 {
			t.Error("clipboard must not be read after an unsolved captcha")
		}
		if !IsRetryable(err) {
			t.Error("expected unsolved captcha to be retryable")
		}
	})
}

// TestWindowMessageCopy tests copying through the posted copy command.
func TestWindowMessageCopy(t *testing.T) {
	t.Parallel()

	f := drivertest.New()
	f.AddGrid(testGridID)
	f.QueueClipboard(drivertest.ClipboardRead{Text: "a\tb\n1\t2\n"})
	s := NewWindowMessageCopy(WithCopyDelay(time.Millisecond))
	s.BindDriver(f)

	res, err := s.Extract(context.Background(), session.New(f), testGridID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Len() != 1 {
		t.Errorf("expected 1 record, got %d", res.Len())
	}
	if !f.Called("PostMessage", "0x111:0xe122:0x0") {
		t.Errorf("expected WM_COMMAND copy message, got %+v", f.Calls())
	}
	if f.Count("SendKeys") != 0 {
		t.Error("expected no keystrokes")
	}
}

// newSaveDriver returns a fake whose save dialog writes content to the
// path typed into its path field.
func newSaveDriver(t *testing.T, content []byte) (*drivertest.Fake, *string) {
	t.Helper()

	f := drivertest.New()
	f.AddGrid(testGridID)
	f.SetPopDialog(true)
	field := f.Put(savePathField, "")
	f.Put(popCloseButton, "否")

	path := new(string)
	f.OnSetText = func(c driver.Control, text string) error {
		if c == field {
			*path = text
		}
		return nil
	}
	f.OnSendKeys = func(_ driver.Control, keys string) error {
		if keys == driver.KeysSaveOverwrite && content != nil {
			return os.WriteFile(*path, content, 0o600)
		}
		return nil
	}
	return f, path
}

// TestFileExport tests the save-as export.
func TestFileExport(t *testing.T) {
	t.Parallel()

	t.Run("parses native text export and removes it", func(t *testing.T) {
		t.Parallel()

		data, err := tabular.EncodeNative("证券代码\t证券名称\t股票余额\n600000\t浦发银行\t100\n")
		if err != nil {
			t.Fatalf("failed to encode: %v", err)
		}
		dir := t.TempDir()
		f, path := newSaveDriver(t, data)
		s := NewFileExport(append(fastOptions(dir), WithSchema(model.Schema{"股票余额": model.FieldInt}))...)
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f), testGridID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Len() != 1 || res.Records[0].String("证券名称") != "浦发银行" {
			t.Errorf("unexpected records: %+v", res.Records)
		}
		if filepath.Dir(*path) != dir || filepath.Ext(*path) != ".xls" {
			t.Errorf("unexpected export path %q", *path)
		}
		if _, err := os.Stat(*path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected export file to be removed, stat error %v", err)
		}
		if !f.Called("SendKeys", driver.KeysSave) {
			t.Error("expected save keys")
		}
		if !f.Called("Click", "否") {
			t.Error("expected pop dialog to be closed")
		}
	})

	t.Run("missing save dialog times out", func(t *testing.T) {
		t.Parallel()

		f, _ := newSaveDriver(t, []byte("a\tb\n"))
		f.SetPopDialog(false)
		s := NewFileExport(fastOptions(t.TempDir())...)
		s.BindDriver(f)

		_, err := s.Extract(context.Background(), session.New(f), testGridID)
		if !errors.Is(err, ErrExportTimeout) {
			t.Errorf("expected ErrExportTimeout, got %v", err)
		}
		if f.Count("SetText") != 0 {
			t.Error("expected no path to be entered")
		}
	})

	t.Run("missing file times out without parsing", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		f, _ := newSaveDriver(t, nil)
		s := NewFileExport(fastOptions(dir)...)
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f), testGridID)
		if !errors.Is(err, ErrExportTimeout) {
			t.Fatalf("expected ErrExportTimeout, got %v", err)
		}
		if errors.Is(err, tabular.ErrMalformedTable) {
			t.Error("expected no parse attempt")
		}
		if res != nil {
			t.Errorf("expected no result, got %+v", res)
		}
		if !IsRetryable(err) {
			t.Error("expected export timeout to be retryable")
		}
	})

	t.Run("cancelled while waiting for file", func(t *testing.T) {
		t.Parallel()

		f, _ := newSaveDriver(t, nil)
		s := NewFileExport(WithTempDir(t.TempDir()), WithFileTimeout(time.Minute), WithPollInterval(5*time.Millisecond))
		s.BindDriver(f)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := s.Extract(ctx, session.New(f), testGridID)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if time.Since(start) > 10*time.Second {
			t.Error("extraction did not stop on cancellation")
		}
	})
}

// newReportDriver returns a fake whose report export writes content to the
// path typed into the export path field when OK is clicked.
func newReportDriver(t *testing.T, content string) (*drivertest.Fake, driver.Control, *string) {
	t.Helper()

	f := drivertest.New()
	button := f.AddMainControl(testGridID, "Button")
	f.Put(excelOutputButton, excelOutputButton.Title)
	field := f.Put(reportPathField, "")
	ok := f.Put(reportOKButton, reportOKButton.Title)

	path := new(string)
	f.OnSetText = func(c driver.Control, text string) error {
		if c == field {
			*path = text
		}
		return nil
	}
	f.OnClick = func(c driver.Control) error {
		if c == ok {
			data, err := tabular.EncodeNative(content)
			if err != nil {
				return err
			}
			return os.WriteFile(*path, data, 0o600)
		}
		return nil
	}
	return f, button, path
}

// TestMultiSectionFileExport tests the report export.
func TestMultiSectionFileExport(t *testing.T) {
	t.Parallel()

	t.Run("parses summary and details", func(t *testing.T) {
		t.Parallel()

		f, _, path := newReportDriver(t, "Acct\tCash\n1\t1000\n\n Code\tQty\n600000\t100\n")
		s := NewMultiSectionFileExport(fastOptions(t.TempDir())...)
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f), testGridID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.HasSummary() {
			t.Fatal("expected a summary")
		}
		wantSummary := model.NewRecord()
		wantSummary.Set("Acct", "1")
		wantSummary.Set("Cash", "1000")
		if !res.Summary.Equal(wantSummary) {
			t.Errorf("summary = %v, expected %v", res.Summary.Map(), wantSummary.Map())
		}
		wantDetail := model.NewRecord()
		wantDetail.Set("Code", "600000")
		wantDetail.Set("Qty", "100")
		if res.Len() != 1 || !res.Records[0].Equal(wantDetail) {
			t.Errorf("details = %+v, expected [%v]", res.Records, wantDetail.Map())
		}
		if _, err := os.Stat(*path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected export file to be removed, stat error %v", err)
		}
	})

	t.Run("single table with header override", func(t *testing.T) {
		t.Parallel()

		f, _, _ := newReportDriver(t, "代码\t数量\n=\"000001\"\t=\"200\"\n")
		opts := append(fastOptions(t.TempDir()),
			WithReportMode(false),
			WithHeader([]string{"code", "qty"}),
			WithSchema(model.Schema{"qty": model.FieldInt}),
		)
		s := NewMultiSectionFileExport(opts...)
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f), testGridID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.HasSummary() {
			t.Error("expected no summary")
		}
		if res.Len() != 1 {
			t.Fatalf("expected 1 record, got %d", res.Len())
		}
		if got := res.Records[0].String("code"); got != "000001" {
			t.Errorf("code = %q, expected %q", got, "000001")
		}
		if got, _ := res.Records[0].Get("qty"); got != int64(200) {
			t.Errorf("qty = %#v, expected int64(200)", got)
		}
	})

	t.Run("disabled button yields no result", func(t *testing.T) {
		t.Parallel()

		f, button, _ := newReportDriver(t, "")
		f.SetEnabled(button, false)
		s := NewMultiSectionFileExport(fastOptions(t.TempDir())...)
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f), testGridID)
		if !errors.Is(err, ErrExportDisabled) {
			t.Fatalf("expected ErrExportDisabled, got %v", err)
		}
		if res != nil {
			t.Errorf("expected no result, got %+v", res)
		}
		if f.Count("Click") != 0 {
			t.Error("expected no clicks")
		}
		if IsRetryable(err) {
			t.Error("expected disabled export to be final")
		}
	})

	t.Run("button that never gets ready is still used", func(t *testing.T) {
		t.Parallel()

		f, button, _ := newReportDriver(t, "Acct\tCash\n1\t1000\n")
		f.SetReady(button, false)
		s := NewMultiSectionFileExport(fastOptions(t.TempDir())...)
		s.BindDriver(f)

		res, err := s.Extract(context.Background(), session.New(f), testGridID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := f.Count("WaitReady"); n != DefaultHandleAttempts {
			t.Errorf("expected %d readiness waits, got %d", DefaultHandleAttempts, n)
		}
		if !res.HasSummary() || res.Len() != 0 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("file never written times out", func(t *testing.T) {
		t.Parallel()

		f, _, _ := newReportDriver(t, "")
		f.OnClick = nil
		dir := t.TempDir()
		s := NewMultiSectionFileExport(fastOptions(dir)...)
		s.BindDriver(f)

		_, err := s.Extract(context.Background(), session.New(f), testGridID)
		if !errors.Is(err, ErrExportTimeout) {
			t.Errorf("expected ErrExportTimeout, got %v", err)
		}
	})
}

// TestIsRetryable tests error classification.
func TestIsRetryable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{"captcha", captcha.ErrCaptchaUnsolved, true},
		{"export timeout", ErrExportTimeout, true},
		{"clipboard", ErrClipboardUnavailable, true},
		{"malformed", tabular.ErrMalformedTable, true},
		{"control not found", driver.ErrControlNotFound, false},
		{"disabled", ErrExportDisabled, false},
		{"not bound", ErrDriverNotBound, false},
		{"nil", nil, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := IsRetryable(tc.err); got != tc.expected {
				t.Errorf("IsRetryable(%v) = %v, expected %v", tc.err, got, tc.expected)
			}
		})
	}
}

// TestParseReport tests parsing a saved report export without a driver.
func TestParseReport(t *testing.T) {
	t.Parallel()

	t.Run("report mode", func(t *testing.T) {
		t.Parallel()

		data := []byte("Acct\tCash\n1\t1000\n\nCode\tQty\n600000\t100\n000001\t200\n")
		res, err := ParseReport(data, WithSchema(model.Schema{"Qty": model.FieldInt}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.HasSummary() || res.Summary.String("Cash") != "1000" {
			t.Errorf("unexpected summary: %v", res.Summary)
		}
		if res.Len() != 2 {
			t.Fatalf("expected 2 rows, got %d", res.Len())
		}
		if v, _ := res.Records[1].Get("Qty"); v != int64(200) {
			t.Errorf("expected typed quantity, got %#v", v)
		}
		if string(res.Raw) != string(data) {
			t.Error("expected raw payload to be kept")
		}
	})

	t.Run("common mode", func(t *testing.T) {
		t.Parallel()

		res, err := ParseReport([]byte("Code\tQty\n600000\t100\n"), WithReportMode(false))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.HasSummary() || res.Len() != 1 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("too short for a report", func(t *testing.T) {
		t.Parallel()

		_, err := ParseReport([]byte("Acct\tCash\n"))
		if !errors.Is(err, tabular.ErrMalformedTable) {
			t.Errorf("expected ErrMalformedTable, got %v", err)
		}
	})
}
