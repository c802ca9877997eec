package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrRecognitionFailed is returned when an engine produced no usable text.
// It is transient: the caller retries within its own attempt budget.
var ErrRecognitionFailed = errors.New("captcha recognition failed")

// ErrUnknownEngine is returned by New for an unsupported engine name.
var ErrUnknownEngine = errors.New("unknown recognition engine")

// Recognizer converts an encoded image into the text it shows.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Name() string
}

// Engine names accepted in configuration.
const (
	EngineTesseract = "tesseract"
	EngineRemote    = "remote"
	EngineManual    = "manual"
)

// Config selects and configures a recognition engine.
type Config struct {
	// Engine is one of EngineTesseract, EngineRemote or EngineManual.
	Engine string

	// Tesseract is the tesseract binary name or path.
	Tesseract string
	// Lang is the tesseract language, "eng" by default.
	Lang string
	// Threshold is the gray level at or above which a pixel becomes white.
	Threshold uint8

	// URL is the remote recognition endpoint.
	URL string
	// TokenURL issues access tokens for the remote endpoint.
	TokenURL string
	// APIKey and SecretKey are the remote client credentials.
	APIKey    string
	SecretKey string
	// Proxy is an optional SOCKS5 proxy address ("host:port") for the remote engine.
	Proxy string
	// Timeout bounds each remote HTTP request.
	Timeout time.Duration

	// WorkDir receives image files handed to tesseract or the operator.
	WorkDir string
}

// New creates the recognizer selected by cfg.Engine.
// Manual recognition reads answers from os.Stdin and prompts on os.Stderr.
func New(cfg Config, logger *slog.Logger) (Recognizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Engine {
	case EngineTesseract, "":
		return NewTesseract(cfg, WithTesseractLogger(logger)), nil
	case EngineRemote:
		return NewRemote(cfg, WithRemoteLogger(logger))
	case EngineManual:
		return NewManual(os.Stdin, os.Stderr, cfg.WorkDir), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}

// Func adapts a plain function to the Recognizer interface.
type Func func(ctx context.Context, image []byte) (string, error)

// Recognize calls f.
func (f Func) Recognize(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// Name returns "func".
func (f Func) Name() string {
	return "func"
}

// writeTemp stores image bytes in dir (or the OS temp dir) and returns the
// path with a cleanup function.
func writeTemp(dir string, image []byte) (string, func(), error) {
	f, err := os.CreateTemp(dir, "captcha-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("create captcha image file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.Write(image); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write captcha image file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close captcha image file: %w", err)
	}
	return path, cleanup, nil
}
