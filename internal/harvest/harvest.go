// Package harvest relocates produced result files from the driver's
// transient report location into the orchestrator-owned stable report
// directory.
package harvest

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/moa2ofo/utpipeline/internal/fsops"
	"github.com/moa2ofo/utpipeline/internal/logfields"
)

// Harvester copies report trees and clears their origin so results never
// accumulate across runs.
type Harvester struct{}

// NewHarvester creates a Harvester.
func NewHarvester() *Harvester {
	return &Harvester{}
}

// Collect copies the full contents of src into dst, then clears src.
// dst is created if absent and emptied first when it already has
// contents, so each run's report reflects only that run. A missing src
// or a failed copy is an error: silently losing results is never a soft
// failure.
func (h *Harvester) Collect(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("report source %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("report source %s: %w", src, fsops.ErrNotADirectory)
	}

	if err := fsops.EnsureDir(dst); err != nil {
		return err
	}

	entries, err := os.ReadDir(dst)
	if err != nil {
		return fmt.Errorf("read report destination %s: %w", dst, err)
	}
	if len(entries) > 0 {
		if err := fsops.ClearDir(dst); err != nil {
			return fmt.Errorf("clear report destination: %w", err)
		}
		slog.Info("Cleared previous report contents", logfields.Path(dst))
	}

	if err := fsops.CopyDir(src, dst); err != nil {
		return fmt.Errorf("copy reports: %w", err)
	}
	slog.Info("Reports harvested", logfields.Source(src), logfields.Dest(dst))

	if err := fsops.ClearDir(src); err != nil {
		return fmt.Errorf("clear report source after copy: %w", err)
	}
	slog.Info("Cleared report source", logfields.Path(src))

	return nil
}
