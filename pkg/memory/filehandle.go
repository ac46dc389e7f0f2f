package memory

import (
	"fmt"

	"pagecache/pkg/cerrors"
	"pagecache/pkg/primitives"
	"pagecache/pkg/storage/fsutil"
)

// FileHandle is a cache-aware handle on a file that is not currently mapped.
// It exposes the destructive filesystem operations (rename, delete) that must
// be refused while the cache has live state for the file.
type FileHandle struct {
	cache *PageCache
	base  primitives.Filepath
	path  primitives.Filepath
}

// StreamFilesRecursive lists every regular file under base, in sorted order,
// wrapped in cache-aware handles.
func (c *PageCache) StreamFilesRecursive(base primitives.Filepath) ([]FileHandle, error) {
	paths, err := fsutil.StreamFilesRecursive(base)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CategoryIO, "StreamFilesRecursive", "PageCache")
	}
	handles := make([]FileHandle, len(paths))
	for i, p := range paths {
		handles[i] = FileHandle{cache: c, base: base.Clean(), path: p}
	}
	return handles, nil
}

// Path returns the file path this handle refers to.
func (h FileHandle) Path() primitives.Filepath {
	return h.path
}

// Rename moves the file to newPath, creating missing parent directories and
// pruning directories left empty, replacing an existing destination
// atomically. It fails with cerrors.ErrFileIsMapped while either endpoint is
// mapped.
func (h FileHandle) Rename(newPath primitives.Filepath) error {
	newPath = newPath.Clean()
	if err := h.ensureUnmapped(h.path); err != nil {
		return err
	}
	if err := h.ensureUnmapped(newPath); err != nil {
		return err
	}
	if err := fsutil.Rename(h.path, newPath, h.base); err != nil {
		return cerrors.Wrap(err, cerrors.CategoryIO, "Rename", "FileHandle")
	}
	return nil
}

// Delete removes the file. It fails with cerrors.ErrFileIsMapped while the
// file is mapped.
func (h FileHandle) Delete() error {
	if err := h.ensureUnmapped(h.path); err != nil {
		return err
	}
	if err := fsutil.Delete(h.path); err != nil {
		return cerrors.Wrap(err, cerrors.CategoryIO, "Delete", "FileHandle")
	}
	return nil
}

func (h FileHandle) ensureUnmapped(path primitives.Filepath) error {
	if _, mapped := h.cache.GetExistingMapping(path); mapped {
		return cerrors.Wrap(
			fmt.Errorf("%w: %s", cerrors.ErrFileIsMapped, path),
			cerrors.CategoryUsage, "FileHandle", "FileHandle")
	}
	return nil
}
