package gitsource

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/moa2ofo/utpipeline/internal/fsops"
	"github.com/moa2ofo/utpipeline/internal/logfields"
)

// cloneFunc performs the actual retrieval into path. Swappable in tests
// so materialization semantics can be exercised without a remote.
type cloneFunc func(ctx context.Context, path string, opts *git.CloneOptions) error

// Materializer retrieves remote sources into ephemeral scratch
// directories and relocates them into the workspace.
type Materializer struct {
	recurseSubmodules bool
	clone             cloneFunc
}

// NewMaterializer creates a Materializer. When recurseSubmodules is set,
// nested submodules are retrieved along with the main tree.
func NewMaterializer(recurseSubmodules bool) *Materializer {
	return &Materializer{
		recurseSubmodules: recurseSubmodules,
		clone: func(ctx context.Context, path string, opts *git.CloneOptions) error {
			_, err := git.PlainCloneContext(ctx, path, false, opts)
			return err
		},
	}
}

// Materialize resolves rawURL, clones it into a scratch directory and
// atomically relocates the clone to workspace/<name>, replacing any
// prior occupant. It returns the final on-disk path.
//
// The scratch directory is created under the workspace's parent so the
// final relocation is a same-filesystem rename, and it is removed on
// every exit path.
func (m *Materializer) Materialize(ctx context.Context, rawURL, workspace string) (string, error) {
	src, err := ParseSourceURL(rawURL)
	if err != nil {
		return "", err
	}

	scratch, err := os.MkdirTemp(filepath.Dir(workspace), "repo_clone_")
	if err != nil {
		return "", fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if err := fsops.ForceRemoveAll(scratch); err != nil {
			slog.Warn("Failed to remove scratch directory", logfields.Path(scratch), logfields.Error(err))
		}
	}()

	clonePath := filepath.Join(scratch, src.Name)
	if err := m.cloneSource(ctx, src, clonePath); err != nil {
		return "", &CloneError{URL: src.URL, Err: err}
	}

	dest := filepath.Join(workspace, src.Name)
	if err := fsops.ForceRemoveAll(dest); err != nil {
		return "", fmt.Errorf("remove existing %s: %w", dest, err)
	}

	if err := os.Rename(clonePath, dest); err != nil {
		return "", fmt.Errorf("move %s into workspace: %w", src.Name, err)
	}

	slog.Info("Source materialized", logfields.Name(src.Name), logfields.URL(src.URL), logfields.Dest(dest))
	return dest, nil
}

// cloneSource clones src into path. A pinned ref is first tried as a
// branch; when the remote has no such branch it is retried as a tag,
// since the URL form does not distinguish the two.
func (m *Materializer) cloneSource(ctx context.Context, src Source, path string) error {
	opts := &git.CloneOptions{
		URL:      src.URL,
		Progress: os.Stdout,
	}
	if m.recurseSubmodules {
		opts.RecurseSubmodules = git.DefaultSubmoduleRecursionDepth
	}

	if src.Ref == "" {
		slog.Debug("Cloning default branch", logfields.URL(src.URL), logfields.Path(path))
		return m.clone(ctx, path, opts)
	}

	branchOpts := *opts
	branchOpts.ReferenceName = plumbing.NewBranchReferenceName(src.Ref)
	branchOpts.SingleBranch = true

	slog.Debug("Cloning pinned ref", logfields.URL(src.URL), logfields.Ref(src.Ref), logfields.Path(path))
	err := m.clone(ctx, path, &branchOpts)
	if err == nil {
		return nil
	}
	if !isMissingRef(err) {
		return err
	}

	// Branch miss: clean the partial attempt and retry as a tag.
	if rmErr := fsops.ForceRemoveAll(path); rmErr != nil {
		return fmt.Errorf("reset clone path after branch miss: %w", rmErr)
	}

	tagOpts := *opts
	tagOpts.ReferenceName = plumbing.NewTagReferenceName(src.Ref)
	tagOpts.SingleBranch = true
	return m.clone(ctx, path, &tagOpts)
}

// isMissingRef reports whether a clone failure means the requested ref
// does not exist on the remote, as opposed to a transport/auth failure.
func isMissingRef(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "couldn't find remote ref") ||
		strings.Contains(msg, "reference not found") ||
		strings.Contains(msg, "no matching ref")
}
