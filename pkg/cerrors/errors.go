// Package cerrors defines the error taxonomy of the page cache.
//
// Errors fall into four categories that callers handle differently: usage
// errors (invalid arguments, operating on closed resources), mapping errors
// (conflicting or missing mappings), I/O errors (surfaced from the swapper),
// and integrity errors (corrupted slot state). Bounds violations and cursor
// exceptions are deliberately NOT part of this package: those travel through
// the cursor's sticky flags so the hot read/write path never pays for error
// construction.
package cerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies errors by their nature and appropriate handling strategy.
type Category int

const (
	// CategoryUsage represents errors caused by invalid caller behavior:
	// bad flag combinations, mapping after close, advancing a closed
	// cursor. These are never retried and always surface synchronously.
	CategoryUsage Category = iota

	// CategoryMapping represents errors around file mappings: missing
	// files without a create option, conflicting page sizes, rename or
	// delete of a file that is still mapped.
	CategoryMapping

	// CategoryIO represents errors from the underlying storage device:
	// device full, permission denied, short writes. A failed write leaves
	// the page dirty so the caller can retry once the condition clears.
	CategoryIO

	// CategoryIntegrity represents errors indicating corrupted cache
	// state. These should never occur and indicate a bug.
	CategoryIntegrity
)

// String returns a human-readable name for the category.
func (c Category) String() string {
	switch c {
	case CategoryUsage:
		return "usage"
	case CategoryMapping:
		return "mapping"
	case CategoryIO:
		return "io"
	case CategoryIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Sentinel errors for the usage and mapping taxonomy. Callers match these
// with errors.Is; CacheError wraps them so category context is preserved.
var (
	// ErrCacheClosed is returned when Map or FlushAndForce is called on a
	// closed cache.
	ErrCacheClosed = errors.New("page cache is closed")

	// ErrFilesStillMapped is returned by PageCache.Close while files
	// remain mapped.
	ErrFilesStillMapped = errors.New("cannot close the page cache while files are still mapped")

	// ErrFileIsMapped is returned by rename/delete file operations when
	// the target file has a live mapping.
	ErrFileIsMapped = errors.New("file is mapped")

	// ErrFileUnmapped is returned when a cursor operates on a file whose
	// last mapping has been closed.
	ErrFileUnmapped = errors.New("file has been unmapped")

	// ErrCursorClosed is returned when a closed cursor is advanced.
	ErrCursorClosed = errors.New("cursor is closed")

	// ErrUnsupportedOperation is returned for open options that are
	// explicitly rejected, such as truncating an existing mapping.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidPinFlags is returned by PagedFile.IO when the pin flags
	// do not name exactly one lock mode.
	ErrInvalidPinFlags = errors.New("must specify exactly one of SharedReadLock or SharedWriteLock")

	// ErrIllegalPageSize is returned by Map when the requested page size
	// is larger than the cache page size or too small to hold a single
	// long field.
	ErrIllegalPageSize = errors.New("illegal page size")

	// ErrPageSizeMismatch is returned by Map when the file is already
	// mapped with a different page size and AnyPageSize was not given.
	ErrPageSizeMismatch = errors.New("file is already mapped with a different page size")
)

// CacheError is a structured error with category and origin context.
type CacheError struct {
	// Category classifies the error for appropriate handling strategy.
	Category Category

	// Message is a human-readable description of what went wrong.
	Message string

	// Operation identifies the cache operation that was being performed.
	// Examples: "Map", "Fault", "Evict", "FlushAndForce".
	Operation string

	// Component identifies where the error originated.
	// Examples: "PageCache", "PagedFile", "EvictionManager", "PageSwapper".
	Component string

	// Cause is the underlying error, if any. Sentinel errors wrapped here
	// remain matchable through errors.Is.
	Cause error
}

// New creates a CacheError with the given category, message and origin
// context. Use it when there is no underlying cause to wrap.
func New(category Category, message, operation, component string) *CacheError {
	return &CacheError{
		Category:  category,
		Message:   message,
		Operation: operation,
		Component: component,
	}
}

// Wrap wraps an existing error with cache-specific context. If err is
// already a CacheError, operation and component are filled in only if unset.
// Wrapping nil returns nil.
func Wrap(err error, category Category, operation, component string) *CacheError {
	if err == nil {
		return nil
	}

	var ce *CacheError
	if errors.As(err, &ce) {
		if ce.Operation == "" {
			ce.Operation = operation
		}
		if ce.Component == "" {
			ce.Component = component
		}
		return ce
	}

	return &CacheError{
		Category:  category,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
	}
}

// Error implements the standard Go error interface.
//
// The format follows the pattern:
// [category] Message (operation: Operation, component: Component) caused by: underlying error
func (e *CacheError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Category, e.Message))

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error, enabling error chain traversal
// with errors.Is and errors.As.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// IsIO reports whether err is, or wraps, an I/O-category cache error.
func IsIO(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce) && ce.Category == CategoryIO
}

// IsUsage reports whether err is, or wraps, a usage-category cache error.
func IsUsage(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce) && ce.Category == CategoryUsage
}
