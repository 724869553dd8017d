// Package execrunner isolates child-process execution behind a small
// capability interface so the sequencer, the readiness gate and the
// pipeline controller can be tested with a fake runner instead of real
// processes.
package execrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

// Runner executes child processes on behalf of the pipeline.
type Runner interface {
	// Run executes the command synchronously in dir (or the inherited
	// working directory when dir is empty) and returns nil on exit 0.
	Run(ctx context.Context, dir string, name string, args ...string) error

	// Start launches the command detached, fire-and-forget. Completion
	// status is irrelevant to the caller; only Start failures surface.
	Start(dir string, name string, args ...string) error
}

// ExitCode extracts the child exit status from a Run error. It returns
// -1 for errors that carry no exit status (start failures, cancelled
// contexts) and 0 for a nil error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// ProcessRunner is the real Runner backed by os/exec.
type ProcessRunner struct {
	// Stdout/Stderr receive child output. Nil means inherit the
	// pipeline's own streams; io.Discard silences probes.
	Stdout io.Writer
	Stderr io.Writer
}

// NewProcessRunner returns a Runner that streams child output to the
// orchestrator's stdout/stderr.
func NewProcessRunner() *ProcessRunner {
	return &ProcessRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// NewQuietRunner returns a Runner that discards child output, used for
// health probes whose chatter is noise.
func NewQuietRunner() *ProcessRunner {
	return &ProcessRunner{Stdout: io.Discard, Stderr: io.Discard}
}

func (r *ProcessRunner) Run(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	slog.Debug("Running command", "command", name, "args", args, "dir", dir)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d: %w", name, exitErr.ExitCode(), err)
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

func (r *ProcessRunner) Start(dir string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	slog.Debug("Launched detached process", "command", name, "pid", cmd.Process.Pid)

	// Detach: the child outlives us and nobody waits on it.
	return cmd.Process.Release()
}
