package replay

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidFixture is returned when a fixture is inconsistent.
var ErrInvalidFixture = errors.New("invalid replay fixture")

// Fixture describes the scripted client.
type Fixture struct {
	// Grids are the grid controls of the main window.
	Grids []Grid `yaml:"grids"`

	// Reports are the report export buttons of the main window.
	Reports []Report `yaml:"reports"`

	// Captcha, if set, makes copies raise a challenge dialog.
	Captcha *Captcha `yaml:"captcha"`

	// ClipboardFailures is how many clipboard reads fail before reads
	// start to succeed.
	ClipboardFailures int `yaml:"clipboardFailures"`

	// Minimized starts every grid minimized.
	Minimized bool `yaml:"minimized"`
}

// Grid is one grid control and the tab-delimited text it holds.
type Grid struct {
	ID   int    `yaml:"id"`
	Text string `yaml:"text"`
}

// Report is a report export button and the text its export writes.
type Report struct {
	ButtonID int    `yaml:"buttonId"`
	Text     string `yaml:"text"`
	Disabled bool   `yaml:"disabled"`
}

// Captcha scripts the challenge dialog.
type Captcha struct {
	// Code is the answer the dialog accepts.
	Code string `yaml:"code"`

	// Rounds is how many copies raise the dialog. Zero means every copy
	// until the code has been entered once.
	Rounds int `yaml:"rounds"`

	// Image is an optional path to the challenge image. A blank image is
	// captured when empty.
	Image string `yaml:"image"`
}

// Validate checks ids and required fields.
func (f *Fixture) Validate() error {
	ids := make(map[int]bool, len(f.Grids)+len(f.Reports))
	for _, g := range f.Grids {
		if g.ID <= 0 {
			return fmt.Errorf("%w: grid id must be positive, got %d", ErrInvalidFixture, g.ID)
		}
		if ids[g.ID] {
			return fmt.Errorf("%w: duplicate control id %d", ErrInvalidFixture, g.ID)
		}
		ids[g.ID] = true
	}
	for _, r := range f.Reports {
		if r.ButtonID <= 0 {
			return fmt.Errorf("%w: report button id must be positive, got %d", ErrInvalidFixture, r.ButtonID)
		}
		if ids[r.ButtonID] {
			return fmt.Errorf("%w: duplicate control id %d", ErrInvalidFixture, r.ButtonID)
		}
		ids[r.ButtonID] = true
	}
	if f.Captcha != nil && f.Captcha.Code == "" {
		return fmt.Errorf("%w: captcha needs a code", ErrInvalidFixture)
	}
	if f.ClipboardFailures < 0 {
		return fmt.Errorf("%w: clipboardFailures must not be negative", ErrInvalidFixture)
	}
	return nil
}

// LoadFixture reads and validates a YAML fixture.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided fixture path is intentional
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates YAML fixture data.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
