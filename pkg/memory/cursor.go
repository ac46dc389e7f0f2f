package memory

import (
	"pagecache/pkg/cerrors"
	"pagecache/pkg/primitives"
)

// lockMode is the per-binding lock discipline of a cursor. Read cursors
// start optimistic and may transition to pessimistic for a single binding
// when the page is continuously write-locked; write cursors are always
// exclusive.
type lockMode int

const (
	lockNone lockMode = iota
	lockOptimistic
	lockPessimistic
	lockWriter
)

// CursorError is the free-text cursor exception: explicit out-of-band error
// signaling for "this value is semantically invalid though within bounds".
// It is set by the caller's own validation logic via SetCursorException and
// surfaces through CheckAndClearCursorException as a distinct error type
// from bounds violations.
type CursorError struct {
	Msg string
}

func (e *CursorError) Error() string {
	return "cursor exception: " + e.Msg
}

// PageCursor is the per-thread access handle onto the pages of one
// PagedFile. It binds to one logical page at a time, offers bounds-checked
// typed reads and writes, and implements the locking and retry protocol.
//
// Cursors are pooled: Close returns the cursor to its file's pool for reuse.
// A closed cursor raises the bounds flag on every access and fails Next with
// a usage error, so use-after-close is detectable rather than silently
// reading another page's data. Cursors are not safe for concurrent use by
// multiple goroutines.
type PageCursor struct {
	file  *PagedFile
	flags PinFlags

	current primitives.PageID // bound page, or UnboundPageID
	nextID  primitives.PageID // target of the next Next() call

	s       *slot
	mode    lockMode
	snap    primitives.Stamp // seqlock snapshot, optimistic mode only
	dirtied bool             // write cursor has marked the current page dirty

	offset int
	oob    bool
	excMsg string

	linked *PageCursor

	// linkedOwned marks a cursor handed out by OpenLinkedCursor. Such
	// cursors are closed implicitly (replaced by a newer linked cursor,
	// or transitively by the parent's Close) while the caller may still
	// hold the reference, so they are never returned to the pool: a
	// pooled object would come back to life on a later IO call and the
	// stale reference would silently read another page's data.
	linkedOwned bool

	closed bool
}

// reset re-initializes a cursor fetched from the pool.
func (c *PageCursor) reset(pageID primitives.PageID, flags PinFlags) {
	c.flags = flags
	c.current = primitives.UnboundPageID
	c.nextID = pageID
	c.s = nil
	c.mode = lockNone
	c.snap = 0
	c.dirtied = false
	c.offset = 0
	c.oob = false
	c.excMsg = ""
	c.linked = nil
	c.linkedOwned = false
	c.closed = false
}

// Next advances the cursor to its next target page: the page given to IO on
// the first call, then one past the previously bound page. It returns false
// when the target lies beyond the end of file and growth is disallowed
// (read cursors never grow; NoGrow write cursors do not either), or when the
// target page id is negative.
//
// On a miss the page is faulted in, which may evict another page and block
// until a slot is available. I/O errors from the fault, including write-back
// failures of the evicted victim, are returned to this caller.
func (c *PageCursor) Next() (bool, error) {
	return c.advance(c.nextID)
}

// NextTo binds the cursor to an arbitrary page id, in any order, including
// backwards. Revisiting a recently-visited page is a cache hit if the page
// is still resident.
func (c *PageCursor) NextTo(pageID primitives.PageID) (bool, error) {
	return c.advance(pageID)
}

func (c *PageCursor) advance(target primitives.PageID) (bool, error) {
	if c.closed {
		return false, cerrors.Wrap(cerrors.ErrCursorClosed, cerrors.CategoryUsage, "Next", "PageCursor")
	}
	if c.file.closed.Load() {
		return false, cerrors.Wrap(cerrors.ErrFileUnmapped, cerrors.CategoryUsage, "Next", "PageCursor")
	}

	c.unbind()
	c.offset = 0

	if target < 0 {
		return false, nil
	}

	if target > c.file.LastPageID() {
		if !c.flags.isWriter() || c.flags.noGrow() {
			return false, nil
		}
		c.file.growTo(target)
	}

	s, err := c.file.pin(target, c.flags.noFault())
	if err != nil {
		return false, err
	}
	if s == nil {
		// NoFault and the page is not resident.
		return false, nil
	}

	if err := c.lockPage(s); err != nil {
		c.file.unpin(s)
		return false, err
	}

	c.s = s
	c.current = target
	c.nextID = target + 1
	c.oob = false
	c.excMsg = ""
	return true, nil
}

// lockPage takes the mode-specific lock on the freshly pinned slot.
func (c *PageCursor) lockPage(s *slot) error {
	if c.flags.isWriter() {
		if err := c.file.registerWriter(); err != nil {
			return err
		}
		s.content.Lock()
		s.stamp.Add(1) // odd: writer owns the page
		c.mode = lockWriter
		c.dirtied = false
		return nil
	}

	if snap, ok := s.awaitEvenStamp(); ok {
		c.mode = lockOptimistic
		c.snap = snap
		return nil
	}

	// The write lock is continuously unavailable; fall back to a
	// pessimistic read lock for this binding.
	s.content.RLock()
	c.mode = lockPessimistic
	return nil
}

// unbind releases the current binding: mode lock first, then the pin.
func (c *PageCursor) unbind() {
	s := c.s
	if s == nil {
		c.current = primitives.UnboundPageID
		return
	}

	switch c.mode {
	case lockWriter:
		s.stamp.Add(1) // even: write-unlock bumps the stamp
		s.content.Unlock()
		c.file.deregisterWriter()
	case lockPessimistic:
		s.content.RUnlock()
	}

	c.file.unpin(s)
	c.s = nil
	c.mode = lockNone
	c.current = primitives.UnboundPageID
	c.dirtied = false
}

// ShouldRetry reports whether a concurrent writer invalidated the reads made
// since the cursor bound its current page. On a true return the cursor has
// transparently refreshed its snapshot, and the accumulated bounds flag and
// any pending cursor exception are cleared: the caller re-reads using the
// cursor in its current state rather than restarting Next.
//
// Write cursors and pessimistic read bindings are stable: ShouldRetry
// returns false once no concurrent writer is in flight.
func (c *PageCursor) ShouldRetry() (bool, error) {
	if c.closed {
		return false, cerrors.Wrap(cerrors.ErrCursorClosed, cerrors.CategoryUsage, "ShouldRetry", "PageCursor")
	}

	retry := false
	if c.linked != nil {
		r, err := c.linked.ShouldRetry()
		if err != nil {
			return false, err
		}
		retry = r
	}

	if c.mode == lockOptimistic && c.s != nil {
		cur := c.s.stamp.Load()
		if primitives.Stamp(cur) != c.snap || cur&1 == 1 {
			if c.file.closed.Load() {
				return false, cerrors.Wrap(cerrors.ErrFileUnmapped, cerrors.CategoryUsage, "ShouldRetry", "PageCursor")
			}
			c.snap = c.s.stableStamp()
			retry = true
		}
	}

	if retry {
		c.oob = false
		c.excMsg = ""
	}
	return retry, nil
}

// OpenLinkedCursor opens a second cursor chained to this one, with the same
// pin flags, for accessing an adjacent page as part of one logical
// operation. A parent owns at most one linked cursor: opening a new one
// implicitly closes the previous one, and closing the parent transitively
// closes the linked cursor.
func (c *PageCursor) OpenLinkedCursor(pageID primitives.PageID) (*PageCursor, error) {
	if c.closed {
		return nil, cerrors.Wrap(cerrors.ErrCursorClosed, cerrors.CategoryUsage, "OpenLinkedCursor", "PageCursor")
	}

	if c.linked != nil {
		c.linked.Close()
		c.linked = nil
	}

	linked, err := c.file.IO(pageID, c.flags)
	if err != nil {
		return nil, err
	}
	linked.linkedOwned = true
	c.linked = linked
	return linked, nil
}

// Close unbinds the cursor and returns it to its file's pool. Closing an
// already-closed cursor is a no-op: the pool never holds the same cursor
// twice. An open linked cursor is closed transitively.
//
// Linked cursors stay out of the pool entirely. They can be closed behind
// the caller's back, and an object that re-enters circulation while an old
// reference still points at it would make that reference live again; a
// defunct linked cursor instead keeps failing with ErrCursorClosed and the
// bounds flag forever.
func (c *PageCursor) Close() {
	if c.closed {
		return
	}

	if c.linked != nil {
		c.linked.Close()
		c.linked = nil
	}

	c.unbind()
	c.closed = true
	c.nextID = primitives.UnboundPageID
	c.file.liveCursors.Add(-1)
	if !c.linkedOwned {
		c.file.cursorPool.Put(c)
	}
}

// CurrentPageID returns the page the cursor is bound to, or
// primitives.UnboundPageID when unbound.
func (c *PageCursor) CurrentPageID() primitives.PageID {
	return c.current
}

// CheckAndClearBoundsFlag returns and clears the sticky out-of-bounds flag.
// The result reflects the linked cursor's flag as well: a bounds violation
// on either cursor of a chain reports true here.
func (c *PageCursor) CheckAndClearBoundsFlag() bool {
	v := c.oob
	c.oob = false
	if c.linked != nil {
		v = c.linked.CheckAndClearBoundsFlag() || v
	}
	return v
}

// SetCursorException records a free-text semantic error against the cursor.
// It auto-clears on the next successful Next/NextTo and on a retry-true
// outcome of ShouldRetry.
func (c *PageCursor) SetCursorException(msg string) {
	c.excMsg = msg
}

// ClearCursorException discards any pending cursor exception on this cursor
// and its linked cursor.
func (c *PageCursor) ClearCursorException() {
	c.excMsg = ""
	if c.linked != nil {
		c.linked.ClearCursorException()
	}
}

// CheckAndClearCursorException returns a *CursorError if an exception is
// pending on this cursor or its linked cursor, clearing it in the process.
// Returns nil when no exception is pending.
func (c *PageCursor) CheckAndClearCursorException() error {
	if c.excMsg != "" {
		err := &CursorError{Msg: c.excMsg}
		c.excMsg = ""
		return err
	}
	if c.linked != nil {
		return c.linked.CheckAndClearCursorException()
	}
	return nil
}
