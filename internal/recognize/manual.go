package recognize

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Manual asks an operator to read the captcha. The image is written to a
// file, its path is printed to out, and one line is read from in.
type Manual struct {
	out     io.Writer
	workDir string

	mu     sync.Mutex
	reader *bufio.Reader
}

// NewManual creates a Manual recognizer.
func NewManual(in io.Reader, out io.Writer, workDir string) *Manual {
	return &Manual{
		reader:  bufio.NewReader(in),
		out:     out,
		workDir: workDir,
	}
}

// Name returns "manual".
func (m *Manual) Name() string {
	return EngineManual
}

// Recognize prompts for the code shown in image.
func (m *Manual) Recognize(ctx context.Context, image []byte) (string, error) {
	path, _, err := writeTemp(m.workDir, image)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Fprintf(m.out, "captcha image: %s\nenter the code shown: ", path)

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := m.reader.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			return "", fmt.Errorf("%w: read answer: %w", ErrRecognitionFailed, a.err)
		}
		return strings.TrimSpace(a.line), nil
	}
}
