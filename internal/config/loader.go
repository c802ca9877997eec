package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/gridextract/internal/model"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name looked up in the
// current and home directories.
const DefaultConfigFile = ".gridextract"

// XDGConfigFile is the configuration file name inside XDGConfigDir.
const XDGConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the structure of the .gridextract configuration file.
// Zero values leave the corresponding Config field untouched.
type File struct {
	// Strategy is the default strategy name.
	Strategy string `yaml:"strategy,omitempty"`

	// Grids are extracted when no --grid flag is given.
	Grids []Grid `yaml:"grids,omitempty"`

	// Fixtures are replay fixtures used when no --fixture flag is given.
	// Relative paths are resolved against the configuration file.
	Fixtures []string `yaml:"fixtures,omitempty"`

	// TempDir receives export files and captcha images.
	TempDir string `yaml:"tempDir,omitempty"`

	// ClipboardAttempts is how many times the clipboard is read per copy.
	ClipboardAttempts int `yaml:"clipboardAttempts,omitempty"`

	// Retries is a pointer so that an explicit 0 disables retries.
	Retries *int `yaml:"retries,omitempty"`

	// Concurrency is the number of sessions extracted in parallel.
	Concurrency int `yaml:"concurrency,omitempty"`

	// Schema maps column names to field types (string, int, float).
	Schema map[string]string `yaml:"schema,omitempty"`

	// Header replaces the detail header of tdxxls results.
	Header []string `yaml:"header,omitempty"`

	// Report selects summary-plus-details parsing of tdxxls exports.
	Report *bool `yaml:"report,omitempty"`

	// Polling bounds the UI waits.
	Polling Polling `yaml:"polling,omitempty"`

	// Captcha configures challenge handling.
	Captcha Captcha `yaml:"captcha,omitempty"`
}

// Polling holds the polling intervals and timeouts.
type Polling struct {
	Interval      time.Duration `yaml:"interval,omitempty"`
	DialogTimeout time.Duration `yaml:"dialogTimeout,omitempty"`
	FileTimeout   time.Duration `yaml:"fileTimeout,omitempty"`
	CopyDelay     time.Duration `yaml:"copyDelay,omitempty"`
	RetryDelay    time.Duration `yaml:"retryDelay,omitempty"`
}

// Captcha holds the challenge handling and recognition settings.
type Captcha struct {
	MaxAttempts int    `yaml:"maxAttempts,omitempty"`
	Engine      string `yaml:"engine,omitempty"`

	// Tesseract engine.
	Tesseract string `yaml:"tesseract,omitempty"`
	Lang      string `yaml:"lang,omitempty"`
	Threshold uint8  `yaml:"threshold,omitempty"`

	// Remote engine.
	URL       string        `yaml:"url,omitempty"`
	TokenURL  string        `yaml:"tokenUrl,omitempty"`
	APIKey    string        `yaml:"apiKey,omitempty"`
	SecretKey string        `yaml:"secretKey,omitempty"`
	Proxy     string        `yaml:"proxy,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// LoadConfigFile loads the configuration file at path.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for i, fx := range cf.Fixtures {
		if !filepath.IsAbs(fx) {
			cf.Fixtures[i] = filepath.Join(dir, fx)
		}
	}

	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .gridextract in the current directory
// 3. Look for .gridextract in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), XDGConfigFile))

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ApplyFile copies the values set in f onto c.
func (c *Config) ApplyFile(f *File) error {
	if f == nil {
		return nil
	}

	if f.Strategy != "" {
		c.Strategy = f.Strategy
	}
	if len(f.Grids) > 0 {
		c.Grids = append([]Grid(nil), f.Grids...)
	}
	if len(f.Fixtures) > 0 {
		c.Fixtures = append([]string(nil), f.Fixtures...)
	}
	if f.TempDir != "" {
		c.TempDir = f.TempDir
	}
	if f.ClipboardAttempts != 0 {
		c.ClipboardAttempts = f.ClipboardAttempts
	}
	if f.Retries != nil {
		c.Retries = *f.Retries
	}
	if f.Concurrency != 0 {
		c.Concurrency = f.Concurrency
	}
	if len(f.Schema) > 0 {
		schema, err := model.ParseSchema(f.Schema)
		if err != nil {
			return fmt.Errorf("invalid schema: %w", err)
		}
		c.Schema = schema
	}
	if len(f.Header) > 0 {
		c.Header = append([]string(nil), f.Header...)
	}
	if f.Report != nil {
		c.ReportMode = *f.Report
	}

	p := f.Polling
	if p.Interval != 0 {
		c.PollInterval = p.Interval
	}
	if p.DialogTimeout != 0 {
		c.DialogTimeout = p.DialogTimeout
	}
	if p.FileTimeout != 0 {
		c.FileTimeout = p.FileTimeout
	}
	if p.CopyDelay != 0 {
		c.CopyDelay = p.CopyDelay
	}
	if p.RetryDelay != 0 {
		c.RetryDelay = p.RetryDelay
	}

	cp := f.Captcha
	if cp.MaxAttempts != 0 {
		c.CaptchaMaxAttempts = cp.MaxAttempts
	}
	r := &c.Recognizer
	if cp.Engine != "" {
		r.Engine = cp.Engine
	}
	if cp.Tesseract != "" {
		r.Tesseract = cp.Tesseract
	}
	if cp.Lang != "" {
		r.Lang = cp.Lang
	}
	if cp.Threshold != 0 {
		r.Threshold = cp.Threshold
	}
	if cp.URL != "" {
		r.URL = cp.URL
	}
	if cp.TokenURL != "" {
		r.TokenURL = cp.TokenURL
	}
	if cp.APIKey != "" {
		r.APIKey = cp.APIKey
	}
	if cp.SecretKey != "" {
		r.SecretKey = cp.SecretKey
	}
	if cp.Proxy != "" {
		r.Proxy = cp.Proxy
	}
	if cp.Timeout != 0 {
		r.Timeout = cp.Timeout
	}

	return nil
}
