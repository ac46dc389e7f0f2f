package swapper

import (
	"fmt"
	"io"
	"os"
	"sync"

	"pagecache/pkg/primitives"
)

// SingleFileSwapper implements PageSwapper over a single *os.File.
//
// It handles file I/O at page granularity and the thread-safety concerns
// around the shared file handle. Reads and writes go through ReadAt/WriteAt
// so concurrent I/O on distinct pages does not serialize on a file offset;
// the mutex only guards the open/closed state of the handle.
//
// Multiple swappers for the same path serialize through the OS file handle
// but are otherwise independent instances.
type SingleFileSwapper struct {
	file     *os.File
	path     primitives.Filepath
	pageSize int
	mutex    sync.RWMutex // guards file against concurrent Close
}

// Open opens (or creates) the file at path and returns a swapper that reads
// and writes pages of the given size.
func Open(path primitives.Filepath, pageSize int, create bool) (*SingleFileSwapper, error) {
	if path.IsEmpty() {
		return nil, fmt.Errorf("swapper path cannot be empty")
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid page size: %d", pageSize)
	}

	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}

	file, err := os.OpenFile(path.String(), flags, 0644)
	if err != nil {
		return nil, err
	}

	return &SingleFileSwapper{
		file:     file,
		path:     path,
		pageSize: pageSize,
	}, nil
}

// NewFactory returns a swapper Factory backed by SingleFileSwapper.
func NewFactory() Factory {
	return func(path primitives.Filepath, pageSize int, create bool) (PageSwapper, error) {
		return Open(path, pageSize, create)
	}
}

// Read fills buf with the contents of the given logical page. If the page
// lies partially or entirely beyond the current end of file, the remainder
// of buf is zero-filled rather than failing.
func (s *SingleFileSwapper) Read(pageID primitives.PageID, buf []byte) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.file == nil {
		return fmt.Errorf("swapper for %s is closed", s.path)
	}
	if len(buf) != s.pageSize {
		return fmt.Errorf("invalid page buffer size: expected %d, got %d", s.pageSize, len(buf))
	}
	if pageID < 0 {
		return fmt.Errorf("negative page id: %d", pageID)
	}

	offset := int64(pageID) * int64(s.pageSize)
	n, err := s.file.ReadAt(buf, offset)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// Short read past end-of-file: the tail is logically zero.
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read page %d of %s: %w", pageID, s.path, err)
	}
	return nil
}

// Write persists buf as the contents of the given logical page. Writing past
// the current end of file extends the file.
func (s *SingleFileSwapper) Write(pageID primitives.PageID, buf []byte) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.file == nil {
		return fmt.Errorf("swapper for %s is closed", s.path)
	}
	if len(buf) != s.pageSize {
		return fmt.Errorf("invalid page buffer size: expected %d, got %d", s.pageSize, len(buf))
	}
	if pageID < 0 {
		return fmt.Errorf("negative page id: %d", pageID)
	}

	offset := int64(pageID) * int64(s.pageSize)
	if _, err := s.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("failed to write page %d of %s: %w", pageID, s.path, err)
	}
	return nil
}

// Force flushes all written pages to durable storage via fsync.
func (s *SingleFileSwapper) Force() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.file == nil {
		return fmt.Errorf("swapper for %s is closed", s.path)
	}

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", s.path, err)
	}
	return nil
}

// LastPageID returns the id of the last page in the file. A trailing partial
// page counts as a page. Returns primitives.UnboundPageID for an empty file.
func (s *SingleFileSwapper) LastPageID() (primitives.PageID, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.file == nil {
		return primitives.UnboundPageID, fmt.Errorf("swapper for %s is closed", s.path)
	}

	info, err := s.file.Stat()
	if err != nil {
		return primitives.UnboundPageID, fmt.Errorf("failed to stat %s: %w", s.path, err)
	}

	size := info.Size()
	if size == 0 {
		return primitives.UnboundPageID, nil
	}

	pages := size / int64(s.pageSize)
	if size%int64(s.pageSize) != 0 {
		pages++
	}
	return primitives.PageID(pages - 1), nil
}

// Truncate shrinks the file to the given number of pages.
func (s *SingleFileSwapper) Truncate(pageCount int64) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.file == nil {
		return fmt.Errorf("swapper for %s is closed", s.path)
	}
	if pageCount < 0 {
		return fmt.Errorf("negative page count: %d", pageCount)
	}

	if err := s.file.Truncate(pageCount * int64(s.pageSize)); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", s.path, err)
	}
	return nil
}

// Path returns the file path this swapper is bound to.
func (s *SingleFileSwapper) Path() primitives.Filepath {
	return s.path
}

// PageSize returns the logical page size of this swapper.
func (s *SingleFileSwapper) PageSize() int {
	return s.pageSize
}

// Close releases the file handle. Subsequent calls are no-ops.
func (s *SingleFileSwapper) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil
	return err
}
