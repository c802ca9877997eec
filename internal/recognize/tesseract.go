package recognize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"regexp"
	"strings"

	// Registered so captures in either format decode.
	_ "image/gif"
	_ "image/jpeg"
)

// DefaultThreshold separates captcha glyphs from the noisy background.
const DefaultThreshold = 200

// nonCodeChars matches everything that cannot appear in a captcha code.
var nonCodeChars = regexp.MustCompile(`[^0-9A-Za-z]`)

// Tesseract recognizes captcha images with a local tesseract installation.
// Each image is binarized first: gray levels below the threshold become
// black, the rest white, which removes the background speckle the client
// draws behind the digits.
type Tesseract struct {
	binary    string
	lang      string
	threshold uint8
	workDir   string
	runner    Runner
	logger    *slog.Logger
}

// TesseractOption configures a Tesseract recognizer.
type TesseractOption func(*Tesseract)

// WithRunner replaces the process runner, mainly for tests.
func WithRunner(r Runner) TesseractOption {
	return func(t *Tesseract) {
		t.runner = r
	}
}

// WithTesseractLogger sets the logger.
func WithTesseractLogger(logger *slog.Logger) TesseractOption {
	return func(t *Tesseract) {
		t.logger = logger
	}
}

// NewTesseract creates a Tesseract recognizer from cfg.
func NewTesseract(cfg Config, opts ...TesseractOption) *Tesseract {
	t := &Tesseract{
		binary:    cfg.Tesseract,
		lang:      cfg.Lang,
		threshold: cfg.Threshold,
		workDir:   cfg.WorkDir,
	}
	if t.binary == "" {
		t.binary = "tesseract"
	}
	if t.lang == "" {
		t.lang = "eng"
	}
	if t.threshold == 0 {
		t.threshold = DefaultThreshold
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.runner == nil {
		t.runner = execRunner{logger: t.logger}
	}
	return t
}

// Name returns "tesseract".
func (t *Tesseract) Name() string {
	return EngineTesseract
}

// Recognize binarizes img, runs tesseract on it in single-line mode and
// returns the alphanumeric characters it found.
func (t *Tesseract) Recognize(ctx context.Context, img []byte) (string, error) {
	bin, err := Binarize(img, t.threshold)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRecognitionFailed, err)
	}

	path, cleanup, err := writeTemp(t.workDir, bin)
	if err != nil {
		return "", err
	}
	defer cleanup()

	// tesseract <file> stdout -l <lang> --psm 7
	out, errb, err := t.runner.Run(ctx, t.binary, path, "stdout", "-l", t.lang, "--psm", "7")
	if err != nil {
		return "", fmt.Errorf("%w: tesseract: %w: %s", ErrRecognitionFailed, err, strings.TrimSpace(string(errb)))
	}

	code := nonCodeChars.ReplaceAllString(string(out), "")
	if code == "" {
		return "", fmt.Errorf("%w: tesseract returned no characters", ErrRecognitionFailed)
	}
	return code, nil
}

// Binarize decodes an image, converts it to gray and maps every pixel to
// black or white around threshold. The result is PNG encoded.
func Binarize(data []byte, threshold uint8) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode captcha image: %w", err)
	}

	bounds := src.Bounds()
	dst := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			if g.Y < threshold {
				dst.SetGray(x, y, color.Gray{Y: 0})
			} else {
				dst.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode binarized image: %w", err)
	}
	return buf.Bytes(), nil
}
