package memory

import (
	"io"

	"pagecache/pkg/cerrors"
)

// pageReader adapts a read cursor into a sequential io.ReadCloser over the
// file's pages, starting at page zero. Each page is copied out under the
// retry protocol, so the stream never observes a torn page.
type pageReader struct {
	f   *PagedFile
	cur *PageCursor

	page []byte
	pos  int
	n    int
	eof  bool
}

// OpenReader returns a sequential reader over the file's contents from page
// zero to the current last page. The reader owns its cursor; Close releases
// it without affecting the file mapping.
func (f *PagedFile) OpenReader() (io.ReadCloser, error) {
	cur, err := f.IO(0, SharedReadLock)
	if err != nil {
		return nil, err
	}
	return &pageReader{
		f:    f,
		cur:  cur,
		page: make([]byte, f.pageSize),
	}, nil
}

func (r *pageReader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, cerrors.Wrap(cerrors.ErrCursorClosed, cerrors.CategoryUsage, "Read", "pageReader")
	}

	total := 0
	for len(p) > 0 {
		if r.pos == r.n {
			ok, err := r.fill()
			if err != nil {
				return total, err
			}
			if !ok {
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
		}
		c := copy(p, r.page[r.pos:r.n])
		r.pos += c
		p = p[c:]
		total += c
	}
	return total, nil
}

// fill advances the cursor to the next page and snapshots it into r.page.
func (r *pageReader) fill() (bool, error) {
	if r.eof {
		return false, nil
	}
	ok, err := r.cur.Next()
	if err != nil {
		return false, err
	}
	if !ok {
		r.eof = true
		return false, nil
	}
	for {
		r.cur.GetBytesAt(0, r.page)
		retry, err := r.cur.ShouldRetry()
		if err != nil {
			return false, err
		}
		if !retry {
			break
		}
	}
	if r.cur.CheckAndClearBoundsFlag() {
		return false, cerrors.New(cerrors.CategoryIntegrity,
			"page read out of bounds", "Read", "pageReader")
	}
	r.pos = 0
	r.n = len(r.page)
	return true, nil
}

func (r *pageReader) Close() error {
	if r.cur != nil {
		r.cur.Close()
		r.cur = nil
	}
	return nil
}

// pageWriter adapts a write cursor into a sequential io.WriteCloser that
// fills the file page by page from page zero, growing it as needed. A final
// partial page is zero-padded on Close.
type pageWriter struct {
	f   *PagedFile
	cur *PageCursor

	page []byte
	n    int
}

// OpenWriter returns a sequential writer over the file starting at page
// zero. The writer owns its cursor; Close flushes the trailing partial page
// and releases the cursor. Durability still requires FlushAndForce.
func (f *PagedFile) OpenWriter() (io.WriteCloser, error) {
	cur, err := f.IO(0, SharedWriteLock)
	if err != nil {
		return nil, err
	}
	return &pageWriter{
		f:    f,
		cur:  cur,
		page: make([]byte, f.pageSize),
	}, nil
}

func (w *pageWriter) Write(p []byte) (int, error) {
	if w.cur == nil {
		return 0, cerrors.Wrap(cerrors.ErrCursorClosed, cerrors.CategoryUsage, "Write", "pageWriter")
	}

	total := 0
	for len(p) > 0 {
		c := copy(w.page[w.n:], p)
		w.n += c
		p = p[c:]
		total += c
		if w.n == len(w.page) {
			if err := w.emit(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// emit writes the buffered page out through the cursor and resets the buffer.
func (w *pageWriter) emit() error {
	ok, err := w.cur.Next()
	if err != nil {
		return err
	}
	if !ok {
		return cerrors.New(cerrors.CategoryUsage,
			"write cursor could not advance", "Write", "pageWriter")
	}
	w.cur.PutBytesAt(0, w.page)
	if w.cur.CheckAndClearBoundsFlag() {
		return cerrors.New(cerrors.CategoryIntegrity,
			"page write out of bounds", "Write", "pageWriter")
	}
	w.n = 0
	return nil
}

func (w *pageWriter) Close() error {
	if w.cur == nil {
		return nil
	}
	var err error
	if w.n > 0 {
		for i := w.n; i < len(w.page); i++ {
			w.page[i] = 0
		}
		w.n = len(w.page)
		err = w.emit()
	}
	w.cur.Close()
	w.cur = nil
	return err
}
