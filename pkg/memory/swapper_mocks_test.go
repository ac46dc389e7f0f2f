package memory

import (
	"errors"
	"sync"
	"sync/atomic"

	"pagecache/pkg/primitives"
	"pagecache/pkg/storage/swapper"
)

// recordingSwapper wraps a real file-backed swapper, counting I/O calls and
// optionally injecting failures, so tests can observe write-back behavior
// without reaching into the cache internals.
type recordingSwapper struct {
	inner swapper.PageSwapper

	reads  atomic.Int64
	writes atomic.Int64
	forces atomic.Int64

	failReads  atomic.Bool
	failWrites atomic.Bool
}

var errInjected = errors.New("injected i/o failure")

func (s *recordingSwapper) Read(pageID primitives.PageID, buf []byte) error {
	s.reads.Add(1)
	if s.failReads.Load() {
		return errInjected
	}
	return s.inner.Read(pageID, buf)
}

func (s *recordingSwapper) Write(pageID primitives.PageID, buf []byte) error {
	s.writes.Add(1)
	if s.failWrites.Load() {
		return errInjected
	}
	return s.inner.Write(pageID, buf)
}

func (s *recordingSwapper) Force() error {
	s.forces.Add(1)
	return s.inner.Force()
}

func (s *recordingSwapper) LastPageID() (primitives.PageID, error) {
	return s.inner.LastPageID()
}

func (s *recordingSwapper) Truncate(pageCount int64) error {
	return s.inner.Truncate(pageCount)
}

func (s *recordingSwapper) Path() primitives.Filepath {
	return s.inner.Path()
}

func (s *recordingSwapper) Close() error {
	return s.inner.Close()
}

// swapperRegistry hands out recording swappers through a Factory and remembers
// them by path for later inspection.
type swapperRegistry struct {
	mu       sync.Mutex
	swappers map[primitives.Filepath]*recordingSwapper
}

func newSwapperRegistry() *swapperRegistry {
	return &swapperRegistry{swappers: make(map[primitives.Filepath]*recordingSwapper)}
}

func (r *swapperRegistry) factory() swapper.Factory {
	return func(path primitives.Filepath, pageSize int, create bool) (swapper.PageSwapper, error) {
		inner, err := swapper.Open(path, pageSize, create)
		if err != nil {
			return nil, err
		}
		s := &recordingSwapper{inner: inner}
		r.mu.Lock()
		r.swappers[path] = s
		r.mu.Unlock()
		return s, nil
	}
}

func (r *swapperRegistry) get(path primitives.Filepath) *recordingSwapper {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swappers[path.Clean()]
}
