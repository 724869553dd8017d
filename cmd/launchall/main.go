// launchall is the workflow driver: it validates the running platform,
// waits for the Docker daemon to become ready (starting it if
// necessary), then runs the configured workflow steps in order,
// stopping at the first failure and exiting with its status.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/alecthomas/kong"

	"github.com/moa2ofo/utpipeline/internal/config"
	"github.com/moa2ofo/utpipeline/internal/docker"
	"github.com/moa2ofo/utpipeline/internal/execrunner"
	"github.com/moa2ofo/utpipeline/internal/logfields"
	"github.com/moa2ofo/utpipeline/internal/steps"
)

// CLI definition.
type CLI struct {
	Config  string `short:"c" default:"config.yaml" help:"Driver configuration file"`
	Python  string `default:"python" help:"Interpreter used to run workflow steps"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`
}

// AfterApply sets up logging once flags are parsed.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func (c *CLI) Run() error {
	cfg, err := config.LoadDriver(c.Config)
	if err != nil {
		return err
	}

	if !cfg.MatchesPlatform(runtime.GOOS) {
		return fmt.Errorf("config expects OS %q but running on %q", cfg.OS, runtime.GOOS)
	}

	gate := docker.NewGate(
		cfg.Docker.ExecutablePath,
		time.Duration(cfg.Docker.TimeoutSeconds)*time.Second,
		execrunner.NewQuietRunner(),
	)
	if err := gate.Await(context.Background()); err != nil {
		return fmt.Errorf("docker readiness: %w", err)
	}

	sequencer := steps.NewSequencer(execrunner.NewProcessRunner())
	if err := sequencer.RunAll(context.Background(), cfg.Workflow.Steps, []string{c.Python}, ""); err != nil {
		return err
	}

	slog.Info("All steps completed successfully")
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("launchall"),
		kong.Description("Executes the complete software verification workflow in a predefined order. Steps and Docker settings are loaded from config.yaml."),
	)

	if err := kctx.Run(); err != nil {
		slog.Error("Workflow driver failed", logfields.Error(err))

		// A failing step's exit status is propagated verbatim; every
		// other failure class exits 1.
		var stepErr *steps.StepError
		if errors.As(err, &stepErr) && stepErr.ExitCode > 0 {
			os.Exit(stepErr.ExitCode)
		}
		os.Exit(1)
	}
}
