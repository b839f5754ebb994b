package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Local copies new regular files from a source directory. It stands in for
// SFTP in development and tests.
type Local struct {
	sourceDir string
	logger    *slog.Logger
}

func NewLocal(sourceDir string, logger *slog.Logger) *Local {
	return &Local{sourceDir: sourceDir, logger: logger.With("component", "local_transfer")}
}

// Fetch implements domain.Fetcher.
func (l *Local) Fetch(ctx context.Context, stagingDir string) ([]string, error) {
	entries, err := os.ReadDir(l.sourceDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", l.sourceDir, err)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	fetched, err := loadManifest(stagingDir)
	if err != nil {
		return nil, err
	}

	var staged []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return staged, err
		}

		info, err := e.Info()
		if err != nil {
			return staged, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		if fetched.seen(e.Name(), info.Size(), info.ModTime()) {
			continue
		}

		src := filepath.Join(l.sourceDir, e.Name())
		f, err := os.Open(src)
		if err != nil {
			return staged, fmt.Errorf("open %s: %w", src, err)
		}
		dst, err := stage(stagingDir, e.Name(), f)
		f.Close()
		if err != nil {
			return staged, err
		}
		if err := fetched.record(e.Name(), info.Size(), info.ModTime()); err != nil {
			return staged, err
		}
		l.logger.Info("Copied staged file", "from", src, "to", dst)
		staged = append(staged, dst)
	}
	return staged, nil
}
