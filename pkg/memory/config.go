package memory

import (
	"fmt"

	"pagecache/pkg/cerrors"
	"pagecache/pkg/storage/swapper"
)

const (
	// DefaultPageSize is the cache page size used when Config.PageSize is
	// zero. File page sizes may be smaller but never larger.
	DefaultPageSize = 8192

	// MinSlotCount is the smallest legal physical slot count. With fewer
	// than two slots a single linked-cursor pair could never be pinned.
	MinSlotCount = 2

	// MinFilePageSize is the smallest legal file page size: a page must
	// hold at least one long field without straddling a page boundary.
	MinFilePageSize = 8

	// flushBatchSize is the number of completed write I/Os between
	// consultations of the flush limiter.
	flushBatchSize = 64
)

// Config carries the construction parameters of a PageCache.
type Config struct {
	// PageSize is the cache page size in bytes. Defaults to
	// DefaultPageSize. Mapped files may use any page size up to this.
	PageSize int

	// MaxPages is the number of physical page slots, i.e. the cache
	// capacity. Must be at least MinSlotCount.
	MaxPages int

	// SwapperFactory produces the per-file I/O backend for each mapped
	// file. Defaults to the single-file swapper. Tests substitute
	// factories that inject I/O failures.
	SwapperFactory swapper.Factory
}

// validate normalizes defaults and rejects impossible configurations.
func (c *Config) validate() error {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize < MinFilePageSize {
		return fmt.Errorf("cache page size %d is smaller than the minimum %d", c.PageSize, MinFilePageSize)
	}
	if c.MaxPages < MinSlotCount {
		return fmt.Errorf("cache must hold at least %d pages, got %d", MinSlotCount, c.MaxPages)
	}
	if c.SwapperFactory == nil {
		c.SwapperFactory = swapper.NewFactory()
	}
	return nil
}

// PinFlags select the lock discipline and fault behavior of a cursor. Exactly
// one of SharedReadLock or SharedWriteLock must be given to PagedFile.IO; the
// modifiers may be OR'ed in.
type PinFlags int

const (
	// SharedReadLock opens an optimistic read cursor: Next does not block
	// concurrent writers, and every read must be validated through a
	// ShouldRetry loop. Read cursors imply NoGrow.
	SharedReadLock PinFlags = 1 << iota

	// SharedWriteLock opens a write cursor: exclusive per page, but not
	// exclusive across the file — other pages may be concurrently
	// written.
	SharedWriteLock

	// NoFault pins only pages that are already resident; Next returns
	// false instead of faulting a non-resident page in.
	NoFault

	// NoGrow caps Next advancement at the current last page id instead of
	// extending the file. Only meaningful with SharedWriteLock; read
	// cursors never grow.
	NoGrow
)

func (f PinFlags) isReader() bool { return f&SharedReadLock != 0 }
func (f PinFlags) isWriter() bool { return f&SharedWriteLock != 0 }
func (f PinFlags) noFault() bool  { return f&NoFault != 0 }
func (f PinFlags) noGrow() bool   { return f&NoGrow != 0 }

// OpenOption modifies the behavior of PageCache.Map.
type OpenOption int

const (
	// Create creates the file if it does not exist.
	Create OpenOption = iota + 1

	// TruncateExisting truncates the file on mapping. Disallowed against
	// a file that already has a live mapping.
	TruncateExisting

	// DeleteOnClose defers physical deletion of the file until the last
	// mapping is closed.
	DeleteOnClose

	// AnyPageSize accepts an existing mapping with a different page size,
	// provided the existing mapping has no open cursors.
	AnyPageSize

	// CreateNew, Sync and DSync are rejected with
	// cerrors.ErrUnsupportedOperation: the cache controls durability
	// through its own flush protocol.
	CreateNew
	Sync
	DSync
)

// mapOptions is the parsed form of a Map call's OpenOptions.
type mapOptions struct {
	create        bool
	truncate      bool
	deleteOnClose bool
	anyPageSize   bool
}

func parseOpenOptions(opts []OpenOption) (mapOptions, error) {
	var mo mapOptions
	for _, o := range opts {
		switch o {
		case Create:
			mo.create = true
		case TruncateExisting:
			mo.truncate = true
		case DeleteOnClose:
			mo.deleteOnClose = true
		case AnyPageSize:
			mo.anyPageSize = true
		case CreateNew, Sync, DSync:
			return mo, fmt.Errorf("open option %d: %w", o, cerrors.ErrUnsupportedOperation)
		default:
			return mo, fmt.Errorf("unknown open option %d: %w", o, cerrors.ErrUnsupportedOperation)
		}
	}
	return mo, nil
}
