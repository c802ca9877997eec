package strategy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/nao1215/gridextract/internal/poll"
)

// exportPath returns a fresh path for the client to write an export to.
// The file itself is created by the client.
func (b *base) exportPath() (string, error) {
	dir := b.opts.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path, err := filepath.Abs(filepath.Join(dir, uuid.NewString()+".xls"))
	if err != nil {
		return "", fmt.Errorf("resolve export path: %w", err)
	}
	return path, nil
}

// removeExport deletes an export file if the client created it.
func (b *base) removeExport(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.logger().Warn("failed to remove export file", "path", path, "error", err)
	}
}

// waitForFile polls until path exists with content.
func (b *base) waitForFile(ctx context.Context, path string) error {
	err := poll.Until(ctx, b.opts.fileTimeout, b.opts.pollInterval, func(context.Context) (bool, error) {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, fmt.Errorf("stat export file: %w", err)
		}
		return info.Size() > 0, nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return fmt.Errorf("%w: file %s: %w", ErrExportTimeout, path, err)
	}
	return err
}
