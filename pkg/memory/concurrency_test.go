package memory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagecache/pkg/cerrors"
	"pagecache/pkg/primitives"
)

// TestOptimisticReadersNeverSeeTornWrites runs one writer that keeps a page
// holding a pair of equal longs, against several optimistic readers that
// assert the pair is equal under the retry protocol. Without the seqlock the
// readers would observe half-updated pairs.
func TestOptimisticReadersNeverSeeTornWrites(t *testing.T) {
	c, _ := newTestCache(t, 8)
	f := mapFile(t, c, testFile(t, "f.store"))
	defer f.Close()

	writeLong(t, f, 0, 0, 0)
	writeLong(t, f, 0, 8, 0)

	var (
		stop    atomic.Bool
		retries atomic.Int64
		wg      sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		w, err := f.IO(0, SharedWriteLock)
		if err != nil {
			t.Error(err)
			return
		}
		defer w.Close()
		for v := int64(1); !stop.Load(); v++ {
			ok, err := w.NextTo(0)
			if err != nil || !ok {
				t.Error("writer could not bind page 0")
				return
			}
			w.PutLongAt(0, v)
			w.PutLongAt(8, v)
		}
	}()

	const readers = 4
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cur, err := f.IO(0, SharedReadLock)
			if err != nil {
				t.Error(err)
				return
			}
			defer cur.Close()
			for !stop.Load() {
				ok, err := cur.NextTo(0)
				if err != nil || !ok {
					t.Error("reader could not bind page 0")
					return
				}
				var a, b int64
				for {
					a = cur.GetLongAt(0)
					b = cur.GetLongAt(8)
					retry, err := cur.ShouldRetry()
					if err != nil {
						t.Error(err)
						return
					}
					if !retry {
						break
					}
					retries.Add(1)
				}
				if a != b {
					t.Errorf("torn read: %d != %d", a, b)
					return
				}
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	stop.Store(true)
	wg.Wait()
}

// TestManyCursorsFromOneGoroutine holds eight live cursors, read and write,
// across two files from a single goroutine, interleaving accesses.
func TestManyCursorsFromOneGoroutine(t *testing.T) {
	c, _ := newTestCache(t, 32)
	fa := mapFile(t, c, testFile(t, "a.store"))
	defer fa.Close()
	fb := mapFile(t, c, testFile(t, "b.store"))
	defer fb.Close()

	// Seed four pages in each file.
	for i := primitives.PageID(0); i < 4; i++ {
		writeLong(t, fa, i, 0, int64(i)+100)
		writeLong(t, fb, i, 0, int64(i)+200)
	}

	type bound struct {
		cur    *PageCursor
		writer bool
		want   int64
	}
	var cursors []bound

	// Two write cursors and two read cursors per file, each bound to its
	// own page so the write locks never conflict.
	open := func(f *PagedFile, pageID primitives.PageID, writer bool, base int64) {
		flags := SharedReadLock
		if writer {
			flags = SharedWriteLock
		}
		cur, err := f.IO(pageID, flags)
		require.NoError(t, err)
		ok, err := cur.Next()
		require.NoError(t, err)
		require.True(t, ok)
		cursors = append(cursors, bound{cur: cur, writer: writer, want: base + int64(pageID)})
	}

	open(fa, 0, true, 100)
	open(fa, 1, true, 100)
	open(fa, 2, false, 100)
	open(fa, 3, false, 100)
	open(fb, 0, true, 200)
	open(fb, 1, true, 200)
	open(fb, 2, false, 200)
	open(fb, 3, false, 200)
	require.Len(t, cursors, 8)

	// Interleave: writers bump their page, readers verify theirs.
	for round := 0; round < 10; round++ {
		for _, b := range cursors {
			if b.writer {
				b.cur.PutLongAt(8, int64(round))
				continue
			}
			var v int64
			for {
				v = b.cur.GetLongAt(0)
				retry, err := b.cur.ShouldRetry()
				require.NoError(t, err)
				if !retry {
					break
				}
			}
			assert.Equal(t, b.want, v)
		}
	}

	for _, b := range cursors {
		require.False(t, b.cur.CheckAndClearBoundsFlag())
		b.cur.Close()
	}
}

// TestConcurrentWritersDistinctPages spreads goroutines over distinct pages
// of two files under a cache small enough to force eviction, then verifies
// every page's final contents.
func TestConcurrentWritersDistinctPages(t *testing.T) {
	c, _ := newTestCache(t, 8)
	fa := mapFile(t, c, testFile(t, "a.store"))
	defer fa.Close()
	fb := mapFile(t, c, testFile(t, "b.store"))
	defer fb.Close()

	const pagesPerFile = 16
	var wg sync.WaitGroup
	for _, f := range []*PagedFile{fa, fb} {
		for p := primitives.PageID(0); p < pagesPerFile; p++ {
			wg.Add(1)
			go func(f *PagedFile, p primitives.PageID) {
				defer wg.Done()
				cur, err := f.IO(p, SharedWriteLock)
				if err != nil {
					t.Error(err)
					return
				}
				defer cur.Close()
				for i := 0; i < 20; i++ {
					ok, err := cur.NextTo(p)
					if err != nil || !ok {
						t.Errorf("writer could not bind page %d: %v", p, err)
						return
					}
					cur.PutLongAt(0, int64(p)*2)
					cur.PutLongAt(8, int64(p)*2+1)
				}
			}(f, p)
		}
	}
	wg.Wait()

	for _, f := range []*PagedFile{fa, fb} {
		for p := primitives.PageID(0); p < pagesPerFile; p++ {
			assert.Equal(t, int64(p)*2, readLong(t, f, p, 0))
			assert.Equal(t, int64(p)*2+1, readLong(t, f, p, 8))
		}
	}
}

// TestCloseWaitsForWriteLockHolders verifies that unmapping the last
// reference blocks until every write-locked cursor has released its lock,
// while a stale optimistic reader is not waited for: it fails on its next
// advance instead.
func TestCloseWaitsForWriteLockHolders(t *testing.T) {
	c, _ := newTestCache(t, 16)
	f := mapFile(t, c, testFile(t, "f.store"))

	writeLong(t, f, 1, 0, 5)

	w, err := f.IO(0, SharedWriteLock)
	require.NoError(t, err)
	ok, err := w.Next()
	require.NoError(t, err)
	require.True(t, ok)
	w.PutLongAt(0, 9)

	r, err := f.IO(1, SharedReadLock)
	require.NoError(t, err)
	ok, err = r.Next()
	require.NoError(t, err)
	require.True(t, ok)

	done := make(chan error, 1)
	go func() { done <- f.Close() }()

	select {
	case err := <-done:
		t.Fatalf("close completed while a write lock was held: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = r.Next()
	assert.True(t, errors.Is(err, cerrors.ErrFileUnmapped),
		"an optimistic reader must fail instead of being waited for: %v", err)
	r.Close()

	w.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close did not complete after the writer released its lock")
	}
}

// TestConcurrentMapUnmap exercises the mapping refcount under concurrent
// Map/Close pairs against the same path.
func TestConcurrentMapUnmap(t *testing.T) {
	c, _ := newTestCache(t, 8)
	path := testFile(t, "f.store")

	anchor := mapFile(t, c, path)
	writeLong(t, anchor, 0, 0, 5)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				f, err := c.Map(path, testPageSize)
				if err != nil {
					t.Error(err)
					return
				}
				if err := f.Close(); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), readLong(t, anchor, 0, 0))
	require.NoError(t, anchor.Close())
}
