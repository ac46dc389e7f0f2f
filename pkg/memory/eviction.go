package memory

import (
	"errors"
	"sync/atomic"
	"time"

	"pagecache/pkg/cerrors"
	"pagecache/pkg/primitives"
)

// errNoVictim is the internal signal that a full clock sweep found no
// evictable slot. The caller falls back to waiting on the free list.
var errNoVictim = errors.New("no evictable page found")

// evictionManager runs the clock sweep over the slot arena. The hand is a
// plain atomic counter; concurrent faulting threads each advance it
// independently, so two threads never fight over the same victim for long.
type evictionManager struct {
	cache *PageCache
	hand  atomic.Uint64
}

func (m *evictionManager) init(c *PageCache) {
	m.cache = c
}

// evictOne reclaims one slot from a bound page and returns it unbound. The
// sweep makes two passes over the arena: the first pass skips dirty pages and
// pages in the advisory hot set, so clean cold pages go first; the second
// pass takes any unpinned page, writing back dirty victims inline.
//
// A failed victim write-back leaves the victim bound and dirty and is
// returned to the faulting caller as an I/O error.
func (m *evictionManager) evictOne() (*slot, error) {
	n := uint64(len(m.cache.slots))

	for pass := 0; pass < 2; pass++ {
		strict := pass == 0
		for i := uint64(0); i < n; i++ {
			s := m.cache.slots[m.hand.Add(1)%n]
			victim, err := m.tryEvict(s, strict)
			if err != nil {
				return nil, err
			}
			if victim != nil {
				return victim, nil
			}
		}
	}
	return nil, errNoVictim
}

// tryEvict attempts to reclaim s. Returns (nil, nil) when the slot is not a
// suitable victim. In strict mode dirty and recently-pinned pages are passed
// over.
func (m *evictionManager) tryEvict(s *slot, strict bool) (*slot, error) {
	// Cheap peek under a try-lock to find the owning file without
	// contending with pinned slots. The binding is rechecked under the
	// proper lock order below, since it may change after the peek.
	if !s.mu.TryLock() {
		return nil, nil
	}
	f := s.file
	skip := f == nil || s.pins > 0 ||
		(strict && (s.dirty || m.cache.isHot(f.id, s.pageID)))
	s.mu.Unlock()
	if skip {
		return nil, nil
	}

	// Lock order: file.tmu before slot.mu, same as the fault path.
	f.tmu.Lock()
	s.mu.Lock()

	if s.file != f || s.pins > 0 {
		s.mu.Unlock()
		f.tmu.Unlock()
		return nil, nil
	}
	if strict && (s.dirty || m.cache.isHot(f.id, s.pageID)) {
		s.mu.Unlock()
		f.tmu.Unlock()
		return nil, nil
	}

	if s.dirty {
		// pins == 0 means no cursor holds the content lock, so the
		// buffer is stable for the duration of the write.
		if err := f.swap.Write(s.pageID, s.buf[:f.pageSize]); err != nil {
			s.mu.Unlock()
			f.tmu.Unlock()
			return nil, cerrors.Wrap(err, cerrors.CategoryIO, "Evict", "PageCache")
		}
		s.dirty = false
		m.cache.stats.evictionFlushes.Add(1)
	}

	delete(f.table, s.pageID)
	s.file = nil
	s.pageID = primitives.UnboundPageID
	s.mu.Unlock()
	f.tmu.Unlock()

	m.cache.stats.evictions.Add(1)
	return s, nil
}

// acquireFreeSlot returns an unbound slot for a page fault, preferring the
// free list and falling back to eviction when the list is empty. When every
// slot is pinned it blocks, polling the free list until a slot is released.
func (c *PageCache) acquireFreeSlot() (*slot, error) {
	select {
	case idx := <-c.freeList:
		return c.slots[idx], nil
	default:
	}

	for {
		s, err := c.evict.evictOne()
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, errNoVictim) {
			return nil, err
		}

		// Every slot is pinned right now. Wait for an unpin or an
		// unmap to free one, re-running the sweep periodically in case
		// a pin is dropped without the slot reaching the free list.
		select {
		case idx := <-c.freeList:
			return c.slots[idx], nil
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// releaseSlot unbinds s and returns it to the free list. Used by fault paths
// that loaded a slot but lost the installation race or hit a read error.
func (c *PageCache) releaseSlot(s *slot) {
	s.mu.Lock()
	if s.pins > 0 {
		s.pins--
	}
	s.file = nil
	s.pageID = primitives.UnboundPageID
	s.dirty = false
	s.mu.Unlock()
	c.freeList <- s.idx
}
