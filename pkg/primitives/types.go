package primitives

// FileID is a unique file identifier derived from hashing a file path.
// It is generated using FNV-1a and provides deterministic identification:
// the same path always produces the same ID, so a remapped file keeps its
// identity across map/unmap cycles.
type FileID uint64

// PageID is the zero-based logical page number within a single mapped file.
// Logical pages are fixed-size byte regions addressed per file; the cache
// itself imposes no header or record layout on them.
type PageID int64

// Stamp is a per-slot modification counter. It is incremented when a write
// lock is taken and again when it is released, so an odd stamp means a writer
// currently owns the page. Optimistic readers snapshot the stamp at bind time
// and revalidate it after reading to detect concurrent mutation.
type Stamp uint64

// Sentinel values for invalid/unset identifiers
const (
	// UnboundPageID marks a cursor or slot that is not bound to any
	// logical page. It is also the last-page-id of an empty file.
	UnboundPageID PageID = -1

	// InvalidFileID represents an invalid or unset file ID
	InvalidFileID FileID = 0
)
