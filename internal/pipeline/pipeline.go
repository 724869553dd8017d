// Package pipeline composes the orchestration stages into the fixed
// top-level sequence: reset workspace, materialize sources, invoke the
// workflow driver, reset again, harvest reports. Each stage failure
// short-circuits the rest and maps to a distinct process exit status.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/moa2ofo/utpipeline/internal/config"
	"github.com/moa2ofo/utpipeline/internal/execrunner"
	"github.com/moa2ofo/utpipeline/internal/fsops"
	"github.com/moa2ofo/utpipeline/internal/gitsource"
	"github.com/moa2ofo/utpipeline/internal/logfields"
	"github.com/moa2ofo/utpipeline/internal/runlog"
)

// DefaultDriverScript is the workflow driver entry point, expected one
// directory above the workspace.
const DefaultDriverScript = "launchAll.py"

// Stage names recorded in the run log.
const (
	StageEnsureWorkspace  = "ensure_workspace"
	StageResetWorkspace   = "reset_workspace"
	StageMaterialize      = "materialize"
	StageDriver           = "driver"
	StageResetAfterDriver = "reset_after_driver"
	StageHarvest          = "harvest"
)

// Materializer retrieves one source into the workspace.
type Materializer interface {
	Materialize(ctx context.Context, rawURL, workspace string) (string, error)
}

// Harvester relocates report trees.
type Harvester interface {
	Collect(src, dst string) error
}

// Options configures a Controller.
type Options struct {
	Config *config.Config

	// SourceURL, when set, overrides the configured source list
	// entirely (single-source run).
	SourceURL string

	// PythonExe runs the driver entry point.
	PythonExe string

	// DriverScript is the driver entry point filename, resolved one
	// directory above the workspace. Defaults to DefaultDriverScript.
	DriverScript string

	// ReportDir is the stable report destination owned by the
	// orchestrator.
	ReportDir string

	Runner       execrunner.Runner
	Materializer Materializer
	Harvester    Harvester

	// Log is the optional run history store. Recording failures are
	// logged and never fail the pipeline.
	Log *runlog.Store
}

// Controller runs the pipeline once.
type Controller struct {
	opts  Options
	runID string
}

// New creates a Controller, filling in defaulted options.
func New(opts Options) *Controller {
	if opts.DriverScript == "" {
		opts.DriverScript = DefaultDriverScript
	}
	return &Controller{opts: opts, runID: uuid.NewString()}
}

// RunID identifies this pipeline invocation in the run log.
func (c *Controller) RunID() string { return c.runID }

// Run executes the full sequence. A nil return means complete success;
// any error is an *ExitError carrying the process exit status.
func (c *Controller) Run(ctx context.Context) error {
	urls, err := c.sourceURLs()
	if err != nil {
		return err
	}

	c.recordStart(ctx, len(urls))

	runErr := c.run(ctx, urls)

	code := ExitOK
	var xe *ExitError
	if errors.As(runErr, &xe) {
		code = xe.Code
	}
	c.recordFinish(ctx, code)

	return runErr
}

func (c *Controller) run(ctx context.Context, urls []string) error {
	workspace, err := filepath.Abs(c.opts.Config.FolderPath)
	if err != nil {
		return c.fail(ctx, StageEnsureWorkspace, ExitWorkspaceFailed, fmt.Errorf("resolve workspace path: %w", err))
	}

	if err := fsops.EnsureDir(workspace); err != nil {
		return c.fail(ctx, StageEnsureWorkspace, ExitWorkspaceFailed, err)
	}
	c.recordStage(ctx, StageEnsureWorkspace, "ok", workspace)

	if err := fsops.ClearDir(workspace); err != nil {
		return c.fail(ctx, StageResetWorkspace, ExitWorkspaceFailed, fmt.Errorf("clear workspace: %w", err))
	}
	slog.Info("Workspace cleared", logfields.Path(workspace))
	c.recordStage(ctx, StageResetWorkspace, "ok", "")

	for _, u := range urls {
		dest, err := c.opts.Materializer.Materialize(ctx, u, workspace)
		if err != nil {
			// Earlier materializations stay in place: the workspace is
			// left partially populated on mid-run failure.
			var verr *gitsource.ValidationError
			if errors.As(err, &verr) {
				return c.fail(ctx, StageMaterialize, ExitBadSourceURL, err)
			}
			return c.fail(ctx, StageMaterialize, ExitCloneFailed, err)
		}
		slog.Info("Source in place", logfields.URL(u), logfields.Dest(dest))
	}
	c.recordStage(ctx, StageMaterialize, "ok", fmt.Sprintf("%d source(s)", len(urls)))

	if err := c.invokeDriver(ctx, workspace); err != nil {
		return err
	}
	c.recordStage(ctx, StageDriver, "ok", "")

	if err := fsops.ClearDir(workspace); err != nil {
		return c.fail(ctx, StageResetAfterDriver, ExitWorkspaceFailed, fmt.Errorf("clear workspace after driver: %w", err))
	}
	slog.Info("Workspace cleared after driver", logfields.Path(workspace))
	c.recordStage(ctx, StageResetAfterDriver, "ok", "")

	reportSrc := filepath.Join(filepath.Dir(workspace), "utExecutionAndResults", "utResults")
	if err := c.opts.Harvester.Collect(reportSrc, c.opts.ReportDir); err != nil {
		return c.fail(ctx, StageHarvest, ExitHarvestFailed, err)
	}
	c.recordStage(ctx, StageHarvest, "ok", c.opts.ReportDir)

	slog.Info("Pipeline completed", logfields.RunID(c.runID))
	return nil
}

// invokeDriver runs the driver entry point with the workspace's parent
// directory as working context. The driver is a black box beyond its
// exit status.
func (c *Controller) invokeDriver(ctx context.Context, workspace string) error {
	parent := filepath.Dir(workspace)
	script := filepath.Join(parent, c.opts.DriverScript)

	if _, err := os.Stat(script); err != nil {
		return c.fail(ctx, StageDriver, ExitDriverNotFound, fmt.Errorf("driver entry point not found: %s", script))
	}

	slog.Info("Invoking workflow driver", logfields.Path(script), "interpreter", c.opts.PythonExe)
	if err := c.opts.Runner.Run(ctx, parent, c.opts.PythonExe, c.opts.DriverScript); err != nil {
		return c.fail(ctx, StageDriver, ExitDriverFailed, fmt.Errorf("workflow driver failed: %w", err))
	}
	return nil
}

// sourceURLs resolves which sources this run materializes: the CLI URL
// when supplied, otherwise the configured list. An empty result is a
// configuration error, not a trivially-successful run.
func (c *Controller) sourceURLs() ([]string, error) {
	if c.opts.SourceURL != "" {
		return []string{c.opts.SourceURL}, nil
	}
	urls := c.opts.Config.SourceURLs()
	if len(urls) == 0 {
		return nil, exitErr(ExitBadConfig, errors.New("no source URL provided and repo_urls is empty"))
	}
	return urls, nil
}

func (c *Controller) fail(ctx context.Context, stage string, code int, err error) error {
	slog.Error("Pipeline stage failed", logfields.Stage(stage), logfields.ExitCode(code), logfields.Error(err))
	c.recordStage(ctx, stage, "failed", err.Error())
	return exitErr(code, err)
}

func (c *Controller) recordStart(ctx context.Context, sources int) {
	if c.opts.Log == nil {
		return
	}
	if err := c.opts.Log.RecordStart(ctx, c.runID, time.Now(), sources); err != nil {
		slog.Warn("Failed to record run start", logfields.RunID(c.runID), logfields.Error(err))
	}
}

func (c *Controller) recordStage(ctx context.Context, stage, status, detail string) {
	if c.opts.Log == nil {
		return
	}
	if err := c.opts.Log.RecordStage(ctx, c.runID, stage, status, detail); err != nil {
		slog.Warn("Failed to record stage event", logfields.Stage(stage), logfields.Error(err))
	}
}

func (c *Controller) recordFinish(ctx context.Context, code int) {
	if c.opts.Log == nil {
		return
	}
	if err := c.opts.Log.RecordFinish(ctx, c.runID, code); err != nil {
		slog.Warn("Failed to record run finish", logfields.RunID(c.runID), logfields.Error(err))
	}
}
