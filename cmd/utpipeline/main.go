// utpipeline prepares a clean workspace, materializes GitHub sources
// into it, invokes the workflow driver one directory above the
// workspace, and harvests the produced unit-test reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/moa2ofo/utpipeline/internal/config"
	"github.com/moa2ofo/utpipeline/internal/execrunner"
	"github.com/moa2ofo/utpipeline/internal/gitsource"
	"github.com/moa2ofo/utpipeline/internal/harvest"
	"github.com/moa2ofo/utpipeline/internal/logfields"
	"github.com/moa2ofo/utpipeline/internal/pipeline"
	"github.com/moa2ofo/utpipeline/internal/runlog"
)

// CLI definition and global flags.
type CLI struct {
	Verbose bool `short:"v" help:"Enable verbose logging"`

	Run     RunCmd     `cmd:"" default:"withargs" help:"Run the full pipeline: reset workspace, materialize sources, invoke driver, harvest reports"`
	History HistoryCmd `cmd:"" help:"List recent pipeline runs from the run log"`
}

// AfterApply sets up logging once, before any command runs.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

type RunCmd struct {
	SourceURL    string `arg:"" optional:"" name:"source-url" help:"GitHub URL to materialize; overrides the configured repo_urls list"`
	Cfg          string `name:"cfg" default:"./test_module_cfg.yaml" help:"Path to the YAML configuration"`
	NoSubmodules bool   `name:"no-submodules" help:"Do not recurse into submodules"`
	Python       string `name:"python" default:"python3" help:"Python executable used to run the workflow driver"`
}

func (r *RunCmd) Run() error {
	cfg, err := config.Load(r.Cfg)
	if err != nil {
		return &pipeline.ExitError{Code: pipeline.ExitBadConfig, Err: fmt.Errorf("bad config: %w", err)}
	}

	log, err := runlog.Open(runLogPath())
	if err != nil {
		slog.Warn("Run log unavailable, continuing without history", logfields.Error(err))
		log = nil
	} else {
		defer log.Close()
	}

	ctrl := pipeline.New(pipeline.Options{
		Config:       cfg,
		SourceURL:    r.SourceURL,
		PythonExe:    r.Python,
		ReportDir:    filepath.Join(baseDir(), "uintTestReports"),
		Runner:       execrunner.NewProcessRunner(),
		Materializer: gitsource.NewMaterializer(!r.NoSubmodules),
		Harvester:    harvest.NewHarvester(),
		Log:          log,
	})

	slog.Info("Starting pipeline", logfields.RunID(ctrl.RunID()))
	return ctrl.Run(context.Background())
}

type HistoryCmd struct {
	Limit int `default:"20" help:"Maximum number of runs to list"`
}

func (h *HistoryCmd) Run() error {
	log, err := runlog.Open(runLogPath())
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer log.Close()

	runs, err := log.Recent(context.Background(), h.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	for _, r := range runs {
		status := "running"
		if r.Finished {
			status = fmt.Sprintf("exit %d", r.ExitCode)
		}
		fmt.Printf("%s  %s  sources=%d  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.ID, r.Sources, status)
	}
	return nil
}

// baseDir is the directory the orchestrator binary lives in; the stable
// report directory and the run log sit next to it.
func baseDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func runLogPath() string {
	return filepath.Join(baseDir(), "utpipeline.db")
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("utpipeline"),
		kong.Description("Build/verification orchestrator: materializes GitHub sources into a clean workspace, runs the workflow driver and harvests unit-test reports."),
	)

	if err := kctx.Run(); err != nil {
		var xe *pipeline.ExitError
		if errors.As(err, &xe) {
			slog.Error("Pipeline failed", logfields.ExitCode(xe.Code), logfields.Error(xe.Err))
			os.Exit(xe.Code)
		}
		slog.Error("Command failed", logfields.Error(err))
		os.Exit(1)
	}
}
