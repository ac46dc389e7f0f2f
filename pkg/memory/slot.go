package memory

import (
	"runtime"
	"sync"
	"sync/atomic"

	"pagecache/pkg/primitives"
)

// slot is one physical page in the cache's fixed arena. It owns a byte
// buffer of the cache page size and the metadata describing what, if
// anything, is currently loaded into it.
//
// Synchronization is strictly per-slot so unrelated pages never contend:
//
//   - mu guards the binding (file, pageID, pins, dirty). Lock order is
//     always file.tmu before slot.mu; content is never acquired while
//     holding mu.
//   - content is the page content lock: writers hold it exclusively,
//     pessimistic readers hold it shared. Optimistic readers do not touch
//     it at all.
//   - stamp is a seqlock over the buffer: odd while a writer owns the page,
//     bumped to the next even value on write-unlock. Optimistic readers
//     snapshot it at bind time and revalidate in ShouldRetry.
//
// A slot is evictable only when pins == 0. A dirty slot must be written back
// through its bound file's swapper before it may be rebound.
type slot struct {
	idx int
	buf []byte

	mu      sync.Mutex
	file    *PagedFile
	pageID  primitives.PageID
	pins    int
	dirty   bool
	content sync.RWMutex
	stamp   atomic.Uint64
}

// tryPin pins the slot if it is still bound to (f, pageID). Returns false if
// the binding changed, which means the caller raced with eviction and must
// fault the page instead.
func (s *slot) tryPin(f *PagedFile, pageID primitives.PageID) bool {
	s.mu.Lock()
	ok := s.file == f && s.pageID == pageID
	if ok {
		s.pins++
	}
	s.mu.Unlock()
	return ok
}

// unpin releases one pin.
func (s *slot) unpin() {
	s.mu.Lock()
	if s.pins > 0 {
		s.pins--
	}
	s.mu.Unlock()
}

// markDirty flags the slot for write-back.
func (s *slot) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// spinLimit bounds how long an optimistic reader busy-waits for a writer to
// release the page before falling back to the content lock.
const spinLimit = 128

// awaitEvenStamp returns a stable (even) stamp snapshot, spinning briefly
// past an active writer. The second return is false if the writer outlasted
// the spin budget; the caller then waits on the content lock instead.
func (s *slot) awaitEvenStamp() (primitives.Stamp, bool) {
	for i := 0; i < spinLimit; i++ {
		v := s.stamp.Load()
		if v&1 == 0 {
			return primitives.Stamp(v), true
		}
		runtime.Gosched()
	}
	return 0, false
}

// stableStamp returns an even stamp snapshot, blocking on the content lock
// if a writer holds the page longer than the spin budget.
func (s *slot) stableStamp() primitives.Stamp {
	if v, ok := s.awaitEvenStamp(); ok {
		return v
	}
	// Writer is holding the page; wait it out.
	s.content.RLock()
	v := s.stamp.Load()
	s.content.RUnlock()
	return primitives.Stamp(v)
}
