package memory

import (
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"pagecache/pkg/cerrors"
	"pagecache/pkg/iolimit"
	"pagecache/pkg/logging"
	"pagecache/pkg/primitives"
	"pagecache/pkg/storage/swapper"
)

// PageCache is the top-level facade: it maps and unmaps files, deduplicating
// concurrent mappings of the same path, owns the physical slot arena and the
// eviction machinery, and exposes the cache-wide flush used by checkpoints.
type PageCache struct {
	pageSize int
	factory  swapper.Factory

	slots    []*slot
	freeList chan int

	// hot is a lossy, advisory record of recently pinned pages. The
	// eviction scan skips pages found here in its first pass so the
	// clock prefers cold victims. Losing an entry only costs eviction
	// quality, never correctness.
	hot *ristretto.Cache[uint64, struct{}]

	// mu guards mappings, refcounts and the closed flag. Cursor
	// operations never take it.
	mu       sync.Mutex
	mappings map[primitives.Filepath]*PagedFile
	closed   bool

	evict evictionManager
	stats cacheStats
}

// NewPageCache builds a cache with the given configuration. The returned
// cache holds cfg.MaxPages physical slots of cfg.PageSize bytes each.
func NewPageCache(cfg Config) (*PageCache, error) {
	if err := cfg.validate(); err != nil {
		return nil, cerrors.Wrap(err, cerrors.CategoryUsage, "NewPageCache", "PageCache")
	}

	hot, err := ristretto.NewCache(&ristretto.Config[uint64, struct{}]{
		NumCounters: int64(cfg.MaxPages) * 10,
		MaxCost:     int64(cfg.MaxPages),
		BufferItems: 64,
	})
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CategoryUsage, "NewPageCache", "PageCache")
	}

	c := &PageCache{
		pageSize: cfg.PageSize,
		factory:  cfg.SwapperFactory,
		slots:    make([]*slot, cfg.MaxPages),
		freeList: make(chan int, cfg.MaxPages),
		hot:      hot,
		mappings: make(map[primitives.Filepath]*PagedFile),
	}
	for i := range c.slots {
		c.slots[i] = &slot{
			idx:    i,
			buf:    make([]byte, cfg.PageSize),
			pageID: primitives.UnboundPageID,
		}
		c.freeList <- i
	}
	c.evict.init(c)

	logging.WithComponent("PageCache").Info("page cache created",
		"page_size", cfg.PageSize, "max_pages", cfg.MaxPages)
	return c, nil
}

// PageSize returns the cache page size. Mapped files may use any page size
// up to this.
func (c *PageCache) PageSize() int {
	return c.pageSize
}

// Map maps the file at path with the given logical page size and returns a
// PagedFile handle. Mapping an already-mapped path returns the existing
// instance, reference counted, provided the page sizes agree (or AnyPageSize
// is given and the existing mapping has no open cursors).
//
// Mapping a missing file fails unless Create is given. TruncateExisting is
// disallowed against an existing mapping. Unrecognized options, and the
// explicitly rejected CreateNew/Sync/DSync, fail with
// cerrors.ErrUnsupportedOperation.
func (c *PageCache) Map(path primitives.Filepath, pageSize int, opts ...OpenOption) (*PagedFile, error) {
	mo, err := parseOpenOptions(opts)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CategoryUsage, "Map", "PageCache")
	}
	path = path.Clean()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, cerrors.Wrap(cerrors.ErrCacheClosed, cerrors.CategoryUsage, "Map", "PageCache")
	}

	// Bounds are a usage error regardless of whether the path is already
	// mapped, so validate before the mapping lookup.
	if pageSize > c.pageSize || pageSize < MinFilePageSize {
		return nil, cerrors.Wrap(
			fmt.Errorf("%w: %d (cache page size %d, minimum %d)",
				cerrors.ErrIllegalPageSize, pageSize, c.pageSize, MinFilePageSize),
			cerrors.CategoryUsage, "Map", "PageCache")
	}

	if existing, ok := c.mappings[path]; ok {
		return c.remap(existing, pageSize, mo)
	}

	if !path.Exists() && !mo.create {
		return nil, cerrors.Wrap(
			fmt.Errorf("cannot map %s: %w", path, os.ErrNotExist),
			cerrors.CategoryMapping, "Map", "PageCache")
	}

	swap, err := c.factory(path, pageSize, mo.create)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.CategoryIO, "Map", "PageCache")
	}
	if mo.truncate {
		if err := swap.Truncate(0); err != nil {
			swap.Close()
			return nil, cerrors.Wrap(err, cerrors.CategoryIO, "Map", "PageCache")
		}
	}

	f, err := newPagedFile(c, path, pageSize, swap, mo.deleteOnClose)
	if err != nil {
		swap.Close()
		return nil, err
	}
	c.mappings[path] = f

	logging.WithFile(path).Debug("file mapped",
		"page_size", pageSize, "last_page_id", f.lastPageID.Load())
	return f, nil
}

// remap handles a Map call against a path that is already mapped.
// Called with c.mu held.
func (c *PageCache) remap(f *PagedFile, pageSize int, mo mapOptions) (*PagedFile, error) {
	if mo.truncate {
		return nil, cerrors.Wrap(
			fmt.Errorf("cannot truncate %s while it is mapped: %w", f.path, cerrors.ErrUnsupportedOperation),
			cerrors.CategoryUsage, "Map", "PageCache")
	}
	if f.pageSize != pageSize {
		if !mo.anyPageSize || f.liveCursors.Load() > 0 {
			return nil, cerrors.Wrap(
				fmt.Errorf("%w: %s is mapped with page size %d, requested %d",
					cerrors.ErrPageSizeMismatch, f.path, f.pageSize, pageSize),
				cerrors.CategoryMapping, "Map", "PageCache")
		}
	}
	if mo.deleteOnClose {
		f.deleteOnClose = true
	}
	f.refs++
	return f, nil
}

// GetExistingMapping returns the PagedFile mapped at path, if any. It never
// fails: a missing mapping, or a closed cache, yields (nil, false).
func (c *PageCache) GetExistingMapping(path primitives.Filepath) (*PagedFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.mappings[path.Clean()]
	return f, ok
}

// releaseFile drops one reference to f; the last reference triggers the full
// teardown (flush, force, swapper close). Extra releases are no-ops.
func (c *PageCache) releaseFile(f *PagedFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case f.refs == 0:
		// Already fully closed; idempotent.
		return nil
	case f.refs > 1:
		f.refs--
		return nil
	}

	f.refs = 0
	delete(c.mappings, f.path)
	return f.teardown()
}

// FlushAndForce flushes all dirty pages across all mapped files and forces
// each touched file to durable storage, even when no pages were dirty, so a
// checkpoint can rely on at least one device sync per invocation. The
// limiter is consulted between batches of completed write I/Os; pass nil for
// an unlimited flush.
func (c *PageCache) FlushAndForce(limiter iolimit.Limiter) error {
	if limiter == nil {
		limiter = iolimit.Unlimited()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return cerrors.Wrap(cerrors.ErrCacheClosed, cerrors.CategoryUsage, "FlushAndForce", "PageCache")
	}
	files := make([]*PagedFile, 0, len(c.mappings))
	for _, f := range c.mappings {
		f.refs++ // keep the file alive across the flush
		files = append(files, f)
	}
	c.mu.Unlock()

	stamp := iolimit.StartStamp
	var firstErr error
	for _, f := range files {
		if firstErr == nil {
			var err error
			stamp, err = f.flushPages(limiter, stamp)
			if err == nil {
				if ferr := f.swap.Force(); ferr != nil {
					err = cerrors.Wrap(ferr, cerrors.CategoryIO, "FlushAndForce", "PageCache")
				}
			}
			firstErr = err
		}
		if err := c.releaseFile(f); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats returns a snapshot of the cache's activity counters.
func (c *PageCache) Stats() Stats {
	return c.stats.snapshot()
}

// Close releases the page table and swapper-factory resources. It fails
// with cerrors.ErrFilesStillMapped while any file is mapped, and is
// idempotent once it has succeeded.
func (c *PageCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	if len(c.mappings) > 0 {
		return cerrors.Wrap(
			fmt.Errorf("%w: %d files mapped", cerrors.ErrFilesStillMapped, len(c.mappings)),
			cerrors.CategoryUsage, "Close", "PageCache")
	}

	c.closed = true
	c.hot.Close()
	logging.WithComponent("PageCache").Info("page cache closed")
	return nil
}

// hotKey mixes a file id and page id into the advisory hot-set key.
func hotKey(fileID primitives.FileID, pageID primitives.PageID) uint64 {
	return uint64(fileID)*0x9E3779B97F4A7C15 ^ uint64(pageID)
}

// markHot records a pin in the advisory hot set.
func (c *PageCache) markHot(fileID primitives.FileID, pageID primitives.PageID) {
	c.hot.Set(hotKey(fileID, pageID), struct{}{}, 1)
}

// isHot reports whether the page was pinned recently enough to still be in
// the advisory hot set.
func (c *PageCache) isHot(fileID primitives.FileID, pageID primitives.PageID) bool {
	_, ok := c.hot.Get(hotKey(fileID, pageID))
	return ok
}
