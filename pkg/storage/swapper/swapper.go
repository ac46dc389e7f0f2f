package swapper

import (
	"pagecache/pkg/primitives"
)

// PageSwapper is the per-file I/O backend of the page cache. It moves the
// contents of logical pages between a physical page buffer and durable
// storage. One instance exists per mapped file.
//
// Implementations must tolerate reads beyond the current end of file by
// zero-filling the buffer rather than failing, up to the file's logical page
// boundary. A failed write must not corrupt other pages: the error is
// surfaced to the writer and the page stays dirty for retry.
type PageSwapper interface {
	// Read fills buf with the contents of the given logical page.
	// Regions beyond the current end of file are zero-filled.
	Read(pageID primitives.PageID, buf []byte) error

	// Write persists buf as the contents of the given logical page,
	// extending the file if the page lies beyond the current end.
	Write(pageID primitives.PageID, buf []byte) error

	// Force flushes all previously written pages to durable storage.
	Force() error

	// LastPageID returns the id of the last page in the file, or
	// primitives.UnboundPageID for an empty file.
	LastPageID() (primitives.PageID, error)

	// Truncate shrinks the file to the given number of pages.
	Truncate(pageCount int64) error

	// Path returns the file path this swapper is bound to.
	Path() primitives.Filepath

	// Close releases the underlying file handle. Close is idempotent:
	// subsequent calls are no-ops.
	Close() error
}

// Factory produces a PageSwapper for a file path. The page cache owns one
// factory and consults it on every Map call; tests substitute factories that
// wrap swappers with fault injection.
type Factory func(path primitives.Filepath, pageSize int, create bool) (PageSwapper, error)
