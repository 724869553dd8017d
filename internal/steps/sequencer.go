// Package steps executes the declared workflow step list: ordered,
// fail-fast, with the failing step's exit status propagated verbatim.
package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/moa2ofo/utpipeline/internal/execrunner"
	"github.com/moa2ofo/utpipeline/internal/logfields"
)

// ErrNoSteps signals an empty step list, which is a misconfiguration
// rather than a trivially-successful run.
var ErrNoSteps = errors.New("no workflow steps configured")

// StepError reports the first failing step. ExitCode carries the child
// process status verbatim so callers can re-exit with it.
type StepError struct {
	Index    int
	Command  string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed with exit code %d: %v", e.Index+1, e.Command, e.ExitCode, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Sequencer runs workflow steps through a process runner.
type Sequencer struct {
	runner execrunner.Runner
}

// NewSequencer creates a Sequencer executing through runner.
func NewSequencer(runner execrunner.Runner) *Sequencer {
	return &Sequencer{runner: runner}
}

// RunAll executes each step in order in dir. Every step string is split
// on whitespace and appended to the interpreter prefix. The first
// non-zero exit stops the sequence; later steps never run. Steps are
// opaque beyond their exit status.
func (s *Sequencer) RunAll(ctx context.Context, stepList []string, interpreter []string, dir string) error {
	if len(stepList) == 0 {
		return ErrNoSteps
	}
	if len(interpreter) == 0 {
		return errors.New("interpreter prefix must not be empty")
	}

	for i, step := range stepList {
		tokens := append(append([]string{}, interpreter...), strings.Fields(step)...)

		slog.Info("Running workflow step", logfields.Step(i+1), "command", strings.Join(tokens, " "))

		if err := s.runner.Run(ctx, dir, tokens[0], tokens[1:]...); err != nil {
			code := execrunner.ExitCode(err)
			slog.Error("Workflow step failed", logfields.Step(i+1), logfields.ExitCode(code), logfields.Error(err))
			return &StepError{Index: i, Command: step, ExitCode: code, Err: err}
		}

		slog.Info("Workflow step completed", logfields.Step(i+1))
	}

	slog.Info("All workflow steps completed", "count", len(stepList))
	return nil
}
