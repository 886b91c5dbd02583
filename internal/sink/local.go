package sink

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/yourusername/safety-backup-engine/internal/config"
)

// LocalSink mirrors artifacts to another local filesystem path.
type LocalSink struct {
	id       string
	priority int
	basePath string
}

// NewLocalSink creates a local mirror sink.
func NewLocalSink(cfg config.SinkConfig) *LocalSink {
	return &LocalSink{
		id:       cfg.ID,
		priority: cfg.Priority,
		basePath: cfg.Path,
	}
}

func (ls *LocalSink) ID() string    { return ls.id }
func (ls *LocalSink) Type() string  { return "local" }
func (ls *LocalSink) Priority() int { return ls.priority }

// Deliver copies the artifact file into the mirror directory.
func (ls *LocalSink) Deliver(ctx context.Context, sourcePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(ls.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create mirror directory: %w", err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artifact: %w", err)
	}

	destPath := filepath.Join(ls.basePath, filepath.Base(sourcePath))
	log.Printf("[LocalSink] Delivering %s to %s (%d bytes)", filepath.Base(sourcePath), destPath, info.Size())

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create mirror file: %w", err)
	}
	defer dest.Close()

	written, err := io.Copy(dest, src)
	if err != nil {
		os.Remove(destPath) // Cleanup on error
		return fmt.Errorf("failed to write mirror file: %w", err)
	}

	if written != info.Size() {
		os.Remove(destPath)
		return fmt.Errorf("size mismatch: expected %d bytes, wrote %d bytes", info.Size(), written)
	}

	return nil
}

// Delete removes a mirrored artifact; a missing file is not an error.
func (ls *LocalSink) Delete(ctx context.Context, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	destPath := filepath.Join(ls.basePath, filename)
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete mirror file: %w", err)
	}
	return nil
}

// Exists checks if a mirrored artifact exists.
func (ls *LocalSink) Exists(filename string) bool {
	_, err := os.Stat(filepath.Join(ls.basePath, filename))
	return err == nil
}
