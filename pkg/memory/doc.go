// Package memory implements the page cache: it presents fixed-size logical
// pages of one or more on-disk files as pinned, cursor-addressable memory
// regions, while transparently handling page fault-in, dirty-page write-back,
// eviction under memory pressure, and crash-consistent flushing for
// checkpoints.
//
// # Structure
//
// The cache owns a fixed arena of physical page slots. Each slot carries its
// own synchronization: a metadata latch guarding its binding (file, page id,
// pin count, dirty flag), a content lock taken exclusively by writers and
// shared by pessimistic readers, and a modification stamp maintained as a
// seqlock so optimistic readers can detect concurrent mutation without ever
// blocking a writer. Unrelated pages therefore never contend; the only global
// structure is the free list, a buffered channel of reclaimable slots.
//
// # Access protocol
//
// A caller maps a PagedFile, opens a PageCursor with pin flags, and calls
// Next/NextTo to bind the cursor to a page, faulting it in on a miss. Read
// cursors are optimistic by default: every logical read must be wrapped in a
// ShouldRetry loop, and a retry-true outcome means a writer intervened and
// the read must be repeated. Bounds violations and semantically invalid
// values are reported through sticky per-cursor flags rather than errors, so
// the hot path stays cheap.
//
//	cur, err := file.IO(0, memory.SharedReadLock)
//	if err != nil { ... }
//	defer cur.Close()
//	ok, err := cur.Next()
//	for {
//	    value = cur.GetLongAt(0)
//	    retry, err := cur.ShouldRetry()
//	    if err != nil || !retry {
//	        break
//	    }
//	}
//
// # Flushing
//
// PageCache.FlushAndForce writes back every dirty page of every mapped file
// and fsyncs each file once, pacing the writes through an iolimit.Limiter so
// checkpoints do not saturate the device. Closing the last mapping of a
// PagedFile implies the same flush for that file.
package memory
