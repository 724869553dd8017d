// Package docker implements the readiness gate for the container
// runtime: a bounded check-then-launch-then-recheck wait that blocks the
// workflow until the daemon answers its health probe or a deadline
// passes.
package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/moa2ofo/utpipeline/internal/execrunner"
	"github.com/moa2ofo/utpipeline/internal/logfields"
)

// State tracks where the gate is in its two-transition machine:
// Unchecked -> Ready, or Unchecked -> Starting -> Ready|TimedOut.
type State string

const (
	StateUnchecked State = "unchecked"
	StateStarting  State = "starting"
	StateReady     State = "ready"
	StateTimedOut  State = "timed_out"
)

// ErrTimeout is returned when the daemon never becomes healthy within
// the configured budget. It is fatal to the pipeline.
var ErrTimeout = errors.New("docker did not become ready within the timeout")

const (
	probeTimeout = 5 * time.Second
	pollInterval = 2 * time.Second
)

// Gate waits for the Docker daemon, launching it when necessary.
type Gate struct {
	executablePath string
	timeout        time.Duration
	runner         execrunner.Runner
	clock          clockwork.Clock
	state          State
}

// NewGate creates a readiness gate. executablePath is launched detached
// if the first probe fails; timeout bounds the whole wait.
func NewGate(executablePath string, timeout time.Duration, runner execrunner.Runner) *Gate {
	return &Gate{
		executablePath: executablePath,
		timeout:        timeout,
		runner:         runner,
		clock:          clockwork.NewRealClock(),
		state:          StateUnchecked,
	}
}

// State returns the gate's current state.
func (g *Gate) State() State { return g.state }

// Await blocks until the daemon is ready. If the initial probe fails the
// daemon executable is launched fire-and-forget and the probe is retried
// immediately, then every two seconds against a monotonic deadline.
func (g *Gate) Await(ctx context.Context) error {
	g.state = StateUnchecked
	slog.Info("Checking Docker status")

	if g.probe(ctx) {
		g.state = StateReady
		slog.Info("Docker is running")
		return nil
	}

	if _, err := os.Stat(g.executablePath); err != nil {
		return fmt.Errorf("docker executable not found at %s: %w", g.executablePath, err)
	}

	slog.Info("Docker is not running, launching", logfields.Path(g.executablePath))
	if err := g.runner.Start("", g.executablePath); err != nil {
		return fmt.Errorf("launch docker: %w", err)
	}
	g.state = StateStarting

	deadline := g.clock.Now().Add(g.timeout)
	slog.Info("Waiting for Docker to become ready", "timeout", g.timeout.String())

	// Probe right after the launch, then sleep only between failed
	// probes, so a fast-starting daemon is detected without waiting a
	// full interval.
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if g.probe(ctx) {
			g.state = StateReady
			slog.Info("Docker successfully started")
			return nil
		}
		if !g.clock.Now().Before(deadline) {
			g.state = StateTimedOut
			return ErrTimeout
		}

		g.clock.Sleep(pollInterval)
	}
}

// probe runs `docker info` with a short bound. Every failure mode of the
// probe itself (non-zero exit, missing binary, timeout) means "not
// ready" and is never propagated.
func (g *Gate) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := g.runner.Run(probeCtx, "", "docker", "info"); err != nil {
		slog.Debug("Docker probe failed", logfields.Error(err))
		return false
	}
	return true
}
