package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moa2ofo/utpipeline/internal/config"
	"github.com/moa2ofo/utpipeline/internal/gitsource"
	"github.com/moa2ofo/utpipeline/internal/harvest"
	"github.com/moa2ofo/utpipeline/internal/runlog"
)

// fakeMaterializer simulates clones by writing a directory per source.
type fakeMaterializer struct {
	failURL string
	failErr error
	placed  []string
}

func (m *fakeMaterializer) Materialize(_ context.Context, rawURL, workspace string) (string, error) {
	if rawURL == m.failURL {
		return "", m.failErr
	}
	src, err := gitsource.ParseSourceURL(rawURL)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(workspace, src.Name)
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dest, "README.md"), []byte(rawURL), 0o600); err != nil {
		return "", err
	}
	m.placed = append(m.placed, dest)
	return dest, nil
}

// driverRunner simulates the workflow driver by depositing report files
// at the handoff path when invoked.
type driverRunner struct {
	parent   string
	reports  map[string]string
	failWith error
	invoked  bool
}

func (r *driverRunner) Run(_ context.Context, dir string, name string, args ...string) error {
	r.invoked = true
	if r.failWith != nil {
		return r.failWith
	}
	resultDir := filepath.Join(r.parent, "utExecutionAndResults", "utResults")
	for file, content := range r.reports {
		path := filepath.Join(resultDir, file)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return err
		}
	}
	return nil
}

func (r *driverRunner) Start(string, string, ...string) error { return nil }

// testEnv lays out parent/code + parent/launchAll.py the way a real
// installation looks.
type testEnv struct {
	parent    string
	workspace string
	reportDir string
	runner    *driverRunner
	mat       *fakeMaterializer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	parent := t.TempDir()
	workspace := filepath.Join(parent, "code")
	require.NoError(t, os.MkdirAll(workspace, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(parent, "launchAll.py"), []byte("#!/usr/bin/env python3\n"), 0o700))

	return &testEnv{
		parent:    parent,
		workspace: workspace,
		reportDir: filepath.Join(t.TempDir(), "uintTestReports"),
		runner:    &driverRunner{parent: parent, reports: map[string]string{"results.xml": "<ok/>"}},
		mat:       &fakeMaterializer{},
	}
}

func (e *testEnv) controller(cfg *config.Config, sourceURL string, log *runlog.Store) *Controller {
	return New(Options{
		Config:       cfg,
		SourceURL:    sourceURL,
		PythonExe:    "python3",
		ReportDir:    e.reportDir,
		Runner:       e.runner,
		Materializer: e.mat,
		Harvester:    harvest.NewHarvester(),
		Log:          log,
	})
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return ExitOK
	}
	var xe *ExitError
	require.True(t, errors.As(err, &xe), "expected ExitError, got %T: %v", err, err)
	return xe.Code
}

func TestRun_FullSuccess(t *testing.T) {
	env := newTestEnv(t)

	// Stale junk that must be gone by the end.
	require.NoError(t, os.WriteFile(filepath.Join(env.workspace, "junk.txt"), []byte("stale"), 0o600))

	cfg := &config.Config{
		FolderPath: env.workspace,
		RepoURLs:   []string{"https://github.com/owner/repo"},
	}

	err := env.controller(cfg, "", nil).Run(context.Background())
	require.NoError(t, err)

	// Workspace exists and is empty.
	entries, err2 := os.ReadDir(env.workspace)
	require.NoError(t, err2)
	assert.Empty(t, entries, "workspace not empty after run")

	// Stable reports contain exactly what the driver deposited.
	data, err2 := os.ReadFile(filepath.Join(env.reportDir, "results.xml"))
	require.NoError(t, err2)
	assert.Equal(t, "<ok/>", string(data))

	// The driver's report path was emptied.
	resultDir := filepath.Join(env.parent, "utExecutionAndResults", "utResults")
	remaining, err2 := os.ReadDir(resultDir)
	require.NoError(t, err2)
	assert.Empty(t, remaining, "driver report path not cleared")
}

func TestRun_CLIURLOverridesConfiguredList(t *testing.T) {
	env := newTestEnv(t)
	cfg := &config.Config{
		FolderPath: env.workspace,
		RepoURLs:   []string{"https://github.com/cfg/one", "https://github.com/cfg/two"},
	}

	err := env.controller(cfg, "https://github.com/cli/only", nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, env.mat.placed, 1)
	assert.Equal(t, "only", filepath.Base(env.mat.placed[0]))
}

func TestRun_EmptySourcesIsBadConfig(t *testing.T) {
	env := newTestEnv(t)
	cfg := &config.Config{FolderPath: env.workspace}

	err := env.controller(cfg, "", nil).Run(context.Background())
	assert.Equal(t, ExitBadConfig, exitCodeOf(t, err))
}

func TestRun_BadURLExitCode(t *testing.T) {
	env := newTestEnv(t)
	badURL := "https://example.com/owner/repo"
	env.mat.failURL = badURL
	env.mat.failErr = &gitsource.ValidationError{URL: badURL, Reason: "host must be github.com"}

	cfg := &config.Config{FolderPath: env.workspace, RepoURLs: []string{badURL}}

	err := env.controller(cfg, "", nil).Run(context.Background())
	assert.Equal(t, ExitBadSourceURL, exitCodeOf(t, err))
	assert.False(t, env.runner.invoked, "driver ran despite failed materialization")
}

func TestRun_CloneFailureExitCodeAndPartialWorkspace(t *testing.T) {
	env := newTestEnv(t)
	env.mat.failURL = "https://github.com/owner/second"
	env.mat.failErr = &gitsource.CloneError{URL: env.mat.failURL, Err: fmt.Errorf("remote hung up")}

	cfg := &config.Config{
		FolderPath: env.workspace,
		RepoURLs:   []string{"https://github.com/owner/first", env.mat.failURL, "https://github.com/owner/third"},
	}

	err := env.controller(cfg, "", nil).Run(context.Background())
	assert.Equal(t, ExitCloneFailed, exitCodeOf(t, err))

	// Observed behavior: the first source stays in place, no rollback.
	_, statErr := os.Stat(filepath.Join(env.workspace, "first"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(env.workspace, "third"))
	assert.True(t, os.IsNotExist(statErr), "third source materialized after failure")
}

func TestRun_MissingDriverExitCode(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.Remove(filepath.Join(env.parent, "launchAll.py")))

	cfg := &config.Config{FolderPath: env.workspace, RepoURLs: []string{"https://github.com/owner/repo"}}

	err := env.controller(cfg, "", nil).Run(context.Background())
	assert.Equal(t, ExitDriverNotFound, exitCodeOf(t, err))
}

func TestRun_DriverFailureExitCode(t *testing.T) {
	env := newTestEnv(t)
	env.runner.failWith = fmt.Errorf("driver blew up")

	cfg := &config.Config{FolderPath: env.workspace, RepoURLs: []string{"https://github.com/owner/repo"}}

	err := env.controller(cfg, "", nil).Run(context.Background())
	assert.Equal(t, ExitDriverFailed, exitCodeOf(t, err))
}

func TestRun_RecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	store, err := runlog.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := &config.Config{FolderPath: env.workspace, RepoURLs: []string{"https://github.com/owner/repo"}}
	ctrl := env.controller(cfg, "", store)

	require.NoError(t, ctrl.Run(context.Background()))

	runs, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ctrl.RunID(), runs[0].ID)
	assert.Equal(t, ExitOK, runs[0].ExitCode)
	assert.True(t, runs[0].Finished)

	events, err := store.Stages(context.Background(), ctrl.RunID())
	require.NoError(t, err)
	stages := make([]string, 0, len(events))
	for _, e := range events {
		stages = append(stages, e.Stage)
	}
	assert.Equal(t, []string{
		StageEnsureWorkspace,
		StageResetWorkspace,
		StageMaterialize,
		StageDriver,
		StageResetAfterDriver,
		StageHarvest,
	}, stages)
}
