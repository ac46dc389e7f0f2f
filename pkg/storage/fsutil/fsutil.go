// Package fsutil implements the file-handle operations exposed through the
// page cache: renaming and deleting store files and streaming the files of a
// database directory. The mapped-file guard lives in the cache itself; this
// package only performs the filesystem work.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"pagecache/pkg/primitives"
)

// Rename moves a file from oldPath to newPath. Missing intermediate
// directories of newPath are created. After a successful rename, now-empty
// ancestor directories of oldPath are removed, up to but not including base.
//
// When the destination already exists it is replaced atomically, so readers
// racing with the rename observe either the old or the new file, never a
// missing one.
func Rename(oldPath, newPath, base primitives.Filepath) error {
	if !oldPath.Exists() {
		return fmt.Errorf("cannot rename %s: %w", oldPath, os.ErrNotExist)
	}

	if err := os.MkdirAll(newPath.Dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create directories for %s: %w", newPath, err)
	}

	if newPath.Exists() {
		if err := atomic.ReplaceFile(oldPath.String(), newPath.String()); err != nil {
			return fmt.Errorf("failed to replace %s with %s: %w", newPath, oldPath, err)
		}
	} else {
		if err := os.Rename(oldPath.String(), newPath.String()); err != nil {
			return fmt.Errorf("failed to rename %s to %s: %w", oldPath, newPath, err)
		}
	}

	pruneEmptyAncestors(oldPath.Dir(), base.Clean().String())
	return nil
}

// Delete removes the file at path. Deleting a missing file is an error,
// matching the behavior callers expect from store file handles.
func Delete(path primitives.Filepath) error {
	if err := os.Remove(path.String()); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// StreamFilesRecursive lists all regular files under base, recursively, in
// lexical order. Directories themselves are not included.
func StreamFilesRecursive(base primitives.Filepath) ([]primitives.Filepath, error) {
	var files []primitives.Filepath

	err := filepath.WalkDir(base.String(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, primitives.Filepath(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stream files under %s: %w", base, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })
	return files, nil
}

// pruneEmptyAncestors removes dir and its ancestors while they are empty,
// stopping at (and never removing) base.
func pruneEmptyAncestors(dir, base string) {
	dir = filepath.Clean(dir)
	for dir != base && strings.HasPrefix(dir, base+string(filepath.Separator)) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
