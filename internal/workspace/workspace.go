// Package workspace owns the per-job working directory. Every job gets an
// exclusive directory that is recursively removed on every exit path,
// keeping disk usage bounded under sustained load.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

type Workspace struct {
	Dir       string
	InputPath string
	OutDir    string
	logger    zerolog.Logger
}

// Acquire creates the working directory for one job under root (or the
// system temp dir when root is empty).
func Acquire(root, jobID string, logger zerolog.Logger) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, jobID)
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	return &Workspace{
		Dir:       dir,
		InputPath: filepath.Join(dir, "input.mp4"),
		OutDir:    outDir,
		logger:    logger.With().Str("component", "workspace").Str("dir", dir).Logger(),
	}, nil
}

// Release removes the directory tree. Failures are logged, never
// escalated: a leaked temp dir must not fail a finished job.
func (w *Workspace) Release() {
	if w == nil {
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		w.logger.Warn().Err(err).Msg("workspace cleanup failed")
	}
}
