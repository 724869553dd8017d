// Package fsops implements the destructive and idempotent filesystem
// primitives the pipeline is built on: clearing a directory without
// removing it, force-removing write-protected subtrees, and copying
// directory contents for report harvesting.
package fsops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/moa2ofo/utpipeline/internal/logfields"
)

// ErrNotADirectory is returned by ClearDir when the target exists but is not a directory.
var ErrNotADirectory = errors.New("not a directory")

// EnsureDir creates the directory (and parents) if it does not exist.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// ClearDir removes every entry inside dir while keeping dir itself.
// Entries that vanish concurrently are treated as already removed.
// Write-protected entries are made writable before removal. Symlinked
// subdirectories are removed as links, never traversed.
func ClearDir(dir string) error {
	info, err := os.Lstat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("clear %s: %w", dir, ErrNotADirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := ForceRemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// ForceRemoveAll removes path and, if it is a real directory, everything
// beneath it. A missing path is success. Permission-locked entries are
// chmodded writable and retried once before the error is surfaced.
// Symlinks are unlinked, not followed.
func ForceRemoveAll(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.IsDir() {
		// Directories need write+execute permission to delete their children.
		if err := makeTreeWritable(path); err != nil {
			slog.Debug("Could not relax permissions before removal", logfields.Path(path), logfields.Error(err))
		}
		if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		_ = os.Chmod(path, 0o600)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// makeTreeWritable walks root making directories traversable and files
// writable so a subsequent RemoveAll does not trip on read-only modes.
func makeTreeWritable(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			// Listing failures are usually missing execute bits on the directory itself.
			_ = os.Chmod(path, 0o700)
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			_ = os.Chmod(path, 0o700)
		} else {
			_ = os.Chmod(path, 0o600)
		}
		return nil
	})
}

// CopyDir copies every entry inside src into dst, recreating subdirectory
// structure and overwriting same-named destination entries. Symlinks are
// copied as files (their target contents), matching harvest semantics
// where reports are plain trees.
func CopyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source directory %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s: %w", src, ErrNotADirectory)
	}
	if err := EnsureDir(dst); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", src, err)
	}

	for _, entry := range entries {
		s := filepath.Join(src, entry.Name())
		d := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := ForceRemoveAll(d); err != nil {
				return fmt.Errorf("replace %s: %w", d, err)
			}
			if err := CopyDir(s, d); err != nil {
				return err
			}
			continue
		}

		if err := ForceRemoveAll(d); err != nil {
			return fmt.Errorf("replace %s: %w", d, err)
		}
		if err := copyFile(s, d); err != nil {
			return fmt.Errorf("copy %s: %w", s, err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0o200)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
