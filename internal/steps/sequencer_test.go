package steps

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner records executed commands and fails the step whose
// rendered command contains failOn.
type scriptedRunner struct {
	executed []string
	failOn   string
	failErr  error
}

func (r *scriptedRunner) Run(_ context.Context, _ string, name string, args ...string) error {
	cmd := strings.Join(append([]string{name}, args...), " ")
	r.executed = append(r.executed, cmd)
	if r.failOn != "" && strings.Contains(cmd, r.failOn) {
		return r.failErr
	}
	return nil
}

func (r *scriptedRunner) Start(string, string, ...string) error { return nil }

func TestRunAll_ExecutesInOrder(t *testing.T) {
	runner := &scriptedRunner{}
	s := NewSequencer(runner)

	err := s.RunAll(context.Background(),
		[]string{"prepare.py --fast", "run_tests.py", "report.py"},
		[]string{"python"}, "/work")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"python prepare.py --fast",
		"python run_tests.py",
		"python report.py",
	}, runner.executed)
}

func TestRunAll_StopsAtFirstFailure(t *testing.T) {
	// Produce a genuine ExitError so the verbatim code survives.
	realErr := exec.Command("sh", "-c", "exit 3").Run()
	var exitErr *exec.ExitError
	require.True(t, errors.As(realErr, &exitErr), "need a real ExitError")

	runner := &scriptedRunner{failOn: "s2", failErr: fmt.Errorf("wrapped: %w", realErr)}
	s := NewSequencer(runner)

	err := s.RunAll(context.Background(), []string{"s1", "s2", "s3"}, []string{"python"}, "")
	require.Error(t, err)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 1, stepErr.Index)
	assert.Equal(t, "s2", stepErr.Command)
	assert.Equal(t, 3, stepErr.ExitCode)

	// s3 must never run.
	assert.Equal(t, []string{"python s1", "python s2"}, runner.executed)
}

func TestRunAll_EmptyListIsFatal(t *testing.T) {
	s := NewSequencer(&scriptedRunner{})

	err := s.RunAll(context.Background(), nil, []string{"python"}, "")
	assert.True(t, errors.Is(err, ErrNoSteps))
}

func TestRunAll_StepTokensSplitOnWhitespace(t *testing.T) {
	runner := &scriptedRunner{}
	s := NewSequencer(runner)

	err := s.RunAll(context.Background(), []string{"  tool.py   --flag   value "}, []string{"python3"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"python3 tool.py --flag value"}, runner.executed)
}
