package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"pagecache/pkg/cerrors"
	"pagecache/pkg/iolimit"
	"pagecache/pkg/logging"
	"pagecache/pkg/primitives"
	"pagecache/pkg/storage/swapper"
)

// PagedFile is a mapped file handle: it carries the file identity, the
// logical page size, the per-file swapper, last-page-id tracking, and acts as
// the factory for cursors over the file.
//
// Multiple Map calls on the same path return the same PagedFile instance,
// reference counted; the file is actually torn down (flushed, swapper closed)
// when the last reference is closed.
type PagedFile struct {
	cache    *PageCache
	path     primitives.Filepath
	id       primitives.FileID
	pageSize int
	swap     swapper.PageSwapper

	// refs is guarded by cache.mu.
	refs          int
	deleteOnClose bool

	// tmu guards table, the translation from logical page id to the slot
	// currently holding it. Lock order: tmu before slot.mu.
	tmu   sync.RWMutex
	table map[primitives.PageID]*slot

	// lastPageID is monotonic for the lifetime of the mapping: read
	// traversal never raises it, write cursors advancing past the end do.
	lastPageID atomic.Int64

	closed      atomic.Bool
	liveCursors atomic.Int64

	// writerMu/writerCond track live write-lock holders so that
	// unmapping can wait for them. Optimistic read cursors are not
	// tracked: they detect the dead file on their next operation instead.
	writerMu    sync.Mutex
	writerCond  *sync.Cond
	writerCount int

	cursorPool sync.Pool
}

func newPagedFile(c *PageCache, path primitives.Filepath, pageSize int, swap swapper.PageSwapper, deleteOnClose bool) (*PagedFile, error) {
	last, err := swap.LastPageID()
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CategoryIO, "Map", "PagedFile")
	}

	f := &PagedFile{
		cache:         c,
		path:          path,
		id:            path.Hash(),
		pageSize:      pageSize,
		swap:          swap,
		refs:          1,
		deleteOnClose: deleteOnClose,
		table:         make(map[primitives.PageID]*slot),
	}
	f.writerCond = sync.NewCond(&f.writerMu)
	f.lastPageID.Store(int64(last))
	return f, nil
}

// Path returns the file path of this mapping.
func (f *PagedFile) Path() primitives.Filepath {
	return f.path
}

// PageSize returns the logical page size of this mapping.
func (f *PagedFile) PageSize() int {
	return f.pageSize
}

// LastPageID returns the id of the last page in the file, or
// primitives.UnboundPageID for an empty file. The value never decreases for
// the lifetime of an open PagedFile and increases exactly when a write
// cursor advances past the previous last page.
func (f *PagedFile) LastPageID() primitives.PageID {
	return primitives.PageID(f.lastPageID.Load())
}

// growTo raises the last page id to at least pageID.
func (f *PagedFile) growTo(pageID primitives.PageID) {
	for {
		cur := f.lastPageID.Load()
		if cur >= int64(pageID) {
			return
		}
		if f.lastPageID.CompareAndSwap(cur, int64(pageID)) {
			return
		}
	}
}

// IO opens a cursor over this file, initially targeting pageID. The flags
// must name exactly one of SharedReadLock or SharedWriteLock; NoFault and
// NoGrow may be OR'ed in. A negative pageID yields a cursor whose first Next
// returns false without faulting.
//
// The returned cursor is not bound until the first successful Next; any
// access before that raises the bounds flag.
func (f *PagedFile) IO(pageID primitives.PageID, flags PinFlags) (*PageCursor, error) {
	if f.closed.Load() {
		return nil, cerrors.Wrap(cerrors.ErrFileUnmapped, cerrors.CategoryUsage, "IO", "PagedFile")
	}
	if flags.isReader() == flags.isWriter() {
		return nil, cerrors.Wrap(cerrors.ErrInvalidPinFlags, cerrors.CategoryUsage, "IO", "PagedFile")
	}

	cur, _ := f.cursorPool.Get().(*PageCursor)
	if cur == nil {
		cur = &PageCursor{file: f}
	}
	cur.reset(pageID, flags)
	f.liveCursors.Add(1)
	return cur, nil
}

// pin binds (or faults) the given page into a slot and takes one pin on it.
// With noFault set, a non-resident page yields (nil, nil) instead of an I/O.
func (f *PagedFile) pin(pageID primitives.PageID, noFault bool) (*slot, error) {
	// Hit path: the page may already be resident.
	f.tmu.RLock()
	s := f.table[pageID]
	f.tmu.RUnlock()

	if s != nil && s.tryPin(f, pageID) {
		f.cache.stats.hits.Add(1)
		f.cache.stats.pins.Add(1)
		f.cache.markHot(f.id, pageID)
		return s, nil
	}

	if noFault {
		return nil, nil
	}

	for {
		s, err := f.cache.acquireFreeSlot()
		if err != nil {
			return nil, err
		}

		// Tentatively bind and fault the page in. The slot is not yet
		// discoverable through the table, so no other thread can see
		// the partially loaded page.
		s.mu.Lock()
		s.file = f
		s.pageID = pageID
		s.pins = 1
		s.dirty = false
		s.mu.Unlock()

		if err := f.swap.Read(pageID, s.buf[:f.pageSize]); err != nil {
			f.cache.releaseSlot(s)
			logging.WithPage(f.path, pageID).Error("page fault failed", "error", err)
			return nil, cerrors.Wrap(err, cerrors.CategoryIO, "Fault", "PagedFile")
		}

		f.tmu.Lock()
		if existing := f.table[pageID]; existing != nil {
			// Another thread faulted the page first; discard ours
			// and pin the winner.
			pinned := existing.tryPin(f, pageID)
			f.tmu.Unlock()
			f.cache.releaseSlot(s)
			if pinned {
				f.cache.stats.hits.Add(1)
				f.cache.stats.pins.Add(1)
				f.cache.markHot(f.id, pageID)
				return existing, nil
			}
			// The winner was evicted in the meantime; fault again.
			continue
		}
		f.table[pageID] = s
		f.tmu.Unlock()

		f.cache.stats.faults.Add(1)
		f.cache.stats.pins.Add(1)
		f.cache.markHot(f.id, pageID)
		return s, nil
	}
}

// unpin releases one pin on s. The slot stays in the translation table, so
// revisiting the page is a cache hit until eviction reclaims it.
func (f *PagedFile) unpin(s *slot) {
	s.unpin()
	f.cache.stats.unpins.Add(1)
}

// registerWriter records a live write-lock holder. It fails once the file's
// last mapping has begun closing.
func (f *PagedFile) registerWriter() error {
	f.writerMu.Lock()
	defer f.writerMu.Unlock()
	if f.closed.Load() {
		return cerrors.Wrap(cerrors.ErrFileUnmapped, cerrors.CategoryUsage, "Next", "PageCursor")
	}
	f.writerCount++
	return nil
}

// deregisterWriter releases a write-lock registration, waking an unmap that
// is waiting for writers to drain.
func (f *PagedFile) deregisterWriter() {
	f.writerMu.Lock()
	f.writerCount--
	if f.writerCount == 0 {
		f.writerCond.Broadcast()
	}
	f.writerMu.Unlock()
}

// waitWriters blocks until no cursor holds a write lock on any page of this
// file. Must be called after closed has been set so no new writers register.
func (f *PagedFile) waitWriters() {
	f.writerMu.Lock()
	for f.writerCount > 0 {
		f.writerCond.Wait()
	}
	f.writerMu.Unlock()
}

// FlushAndForce writes back this file's dirty pages and fsyncs the file.
func (f *PagedFile) FlushAndForce() error {
	if f.closed.Load() {
		return cerrors.Wrap(cerrors.ErrFileUnmapped, cerrors.CategoryUsage, "FlushAndForce", "PagedFile")
	}
	if _, err := f.flushPages(iolimit.Unlimited(), iolimit.StartStamp); err != nil {
		return err
	}
	if err := f.swap.Force(); err != nil {
		return cerrors.Wrap(err, cerrors.CategoryIO, "FlushAndForce", "PagedFile")
	}
	return nil
}

// flushPages writes back every dirty resident page of this file, pacing
// through the limiter between batches of completed I/Os. A failed write
// leaves the page dirty and aborts the flush.
func (f *PagedFile) flushPages(limiter iolimit.Limiter, stamp int64) (int64, error) {
	f.tmu.RLock()
	slots := make([]*slot, 0, len(f.table))
	for _, s := range f.table {
		slots = append(slots, s)
	}
	f.tmu.RUnlock()

	ios := 0
	for _, s := range slots {
		s.mu.Lock()
		if s.file != f || !s.dirty {
			s.mu.Unlock()
			continue
		}
		pageID := s.pageID
		s.mu.Unlock()

		// The content read-lock keeps a concurrent writer from
		// mutating the page mid-write; the stamp check below keeps a
		// write that lands after ours from being marked clean.
		s.content.RLock()
		before := s.stamp.Load()
		err := f.swap.Write(pageID, s.buf[:f.pageSize])
		s.content.RUnlock()
		if err != nil {
			return stamp, cerrors.Wrap(err, cerrors.CategoryIO, "Flush", "PagedFile")
		}

		s.mu.Lock()
		if s.file == f && s.pageID == pageID && s.stamp.Load() == before {
			s.dirty = false
		}
		s.mu.Unlock()

		f.cache.stats.flushes.Add(1)
		ios++
		if ios%flushBatchSize == 0 {
			stamp = limiter.MaybeLimit(stamp, flushBatchSize)
		}
	}
	if rem := ios % flushBatchSize; rem > 0 {
		stamp = limiter.MaybeLimit(stamp, rem)
	}
	return stamp, nil
}

// Truncate shrinks the underlying file to the given number of pages. Pages
// beyond the new end that are still resident are dropped without write-back.
func (f *PagedFile) Truncate(pageCount int64) error {
	if f.closed.Load() {
		return cerrors.Wrap(cerrors.ErrFileUnmapped, cerrors.CategoryUsage, "Truncate", "PagedFile")
	}

	f.tmu.Lock()
	for pageID, s := range f.table {
		if int64(pageID) < pageCount {
			continue
		}
		s.mu.Lock()
		if s.file == f && s.pins == 0 {
			s.file = nil
			s.pageID = primitives.UnboundPageID
			s.dirty = false
			delete(f.table, pageID)
			f.cache.freeList <- s.idx
		}
		s.mu.Unlock()
	}
	f.tmu.Unlock()

	if err := f.swap.Truncate(pageCount); err != nil {
		return cerrors.Wrap(err, cerrors.CategoryIO, "Truncate", "PagedFile")
	}
	return nil
}

// Close releases one reference to this mapping. Closing the last reference
// flushes the file's dirty pages, forces them to disk, and closes the
// swapper; it blocks until all write-locked cursors on the file have
// released their locks. Extra Close calls are no-ops.
func (f *PagedFile) Close() error {
	return f.cache.releaseFile(f)
}

// teardown runs under cache.mu once the reference count reaches zero.
func (f *PagedFile) teardown() error {
	f.closed.Store(true)
	f.waitWriters()

	log := logging.WithFile(f.path)

	var firstErr error
	if _, err := f.flushPages(iolimit.Unlimited(), iolimit.StartStamp); err != nil {
		log.Error("flush on unmap failed", "error", err)
		firstErr = err
	} else if err := f.swap.Force(); err != nil {
		log.Error("force on unmap failed", "error", err)
		firstErr = cerrors.Wrap(err, cerrors.CategoryIO, "Close", "PagedFile")
	}

	f.invalidateSlots()

	if err := f.swap.Close(); err != nil && firstErr == nil {
		firstErr = cerrors.Wrap(err, cerrors.CategoryIO, "Close", "PagedFile")
	}

	if f.deleteOnClose {
		if err := f.path.Remove(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to delete %s on close: %w", f.path, err)
		}
	}

	log.Debug("file unmapped", "last_page_id", f.lastPageID.Load())
	return firstErr
}

// invalidateSlots unbinds this file's unpinned slots and returns them to the
// free list. Slots still pinned by stale read cursors stay bound; they are
// reclaimed by eviction once those cursors close.
func (f *PagedFile) invalidateSlots() {
	f.tmu.Lock()
	for pageID, s := range f.table {
		s.mu.Lock()
		if s.file == f && s.pins == 0 {
			s.file = nil
			s.pageID = primitives.UnboundPageID
			s.dirty = false
			delete(f.table, pageID)
			f.cache.freeList <- s.idx
		}
		s.mu.Unlock()
	}
	f.tmu.Unlock()
}
