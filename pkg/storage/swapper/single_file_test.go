package swapper

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"pagecache/pkg/primitives"
)

const testPageSize = 64

func tempSwapper(t *testing.T) *SingleFileSwapper {
	t.Helper()
	path := primitives.Filepath(filepath.Join(t.TempDir(), "store.db"))
	s, err := Open(path, testPageSize, true)
	if err != nil {
		t.Fatalf("failed to open swapper: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func pageFilled(b byte) []byte {
	buf := make([]byte, testPageSize)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestOpenValidation(t *testing.T) {
	if _, err := Open("", testPageSize, true); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := Open("/tmp/x", 0, true); err == nil {
		t.Error("expected error for zero page size")
	}
	missing := primitives.Filepath(filepath.Join(t.TempDir(), "missing.db"))
	if _, err := Open(missing, testPageSize, false); err == nil {
		t.Error("expected error opening a missing file without create")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := tempSwapper(t)

	want := pageFilled(0xAB)
	if err := s.Write(3, want); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := make([]byte, testPageSize)
	if err := s.Read(3, got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("read returned different bytes than written")
	}
}

func TestReadBeyondEOFZeroFills(t *testing.T) {
	s := tempSwapper(t)

	if err := s.Write(0, pageFilled(0xFF)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	buf := pageFilled(0xEE)
	if err := s.Read(7, buf); err != nil {
		t.Fatalf("read past EOF should zero-fill, got: %v", err)
	}
	if !bytes.Equal(buf, make([]byte, testPageSize)) {
		t.Error("buffer was not zero-filled")
	}
}

func TestReadValidation(t *testing.T) {
	s := tempSwapper(t)

	if err := s.Read(-1, make([]byte, testPageSize)); err == nil {
		t.Error("expected error for negative page id")
	}
	if err := s.Read(0, make([]byte, testPageSize/2)); err == nil {
		t.Error("expected error for wrong buffer size")
	}
	if err := s.Write(-1, make([]byte, testPageSize)); err == nil {
		t.Error("expected error for negative page id on write")
	}
}

func TestLastPageID(t *testing.T) {
	s := tempSwapper(t)

	last, err := s.LastPageID()
	if err != nil {
		t.Fatalf("LastPageID failed: %v", err)
	}
	if last != primitives.UnboundPageID {
		t.Errorf("empty file should have no last page, got %d", last)
	}

	if err := s.Write(4, pageFilled(1)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	last, err = s.LastPageID()
	if err != nil {
		t.Fatalf("LastPageID failed: %v", err)
	}
	if last != 4 {
		t.Errorf("expected last page 4, got %d", last)
	}
}

func TestLastPageIDCountsPartialPage(t *testing.T) {
	path := primitives.Filepath(filepath.Join(t.TempDir(), "partial.db"))
	if err := os.WriteFile(path.String(), make([]byte, testPageSize+1), 0644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	s, err := Open(path, testPageSize, false)
	if err != nil {
		t.Fatalf("failed to open swapper: %v", err)
	}
	defer s.Close()

	last, err := s.LastPageID()
	if err != nil {
		t.Fatalf("LastPageID failed: %v", err)
	}
	if last != 1 {
		t.Errorf("trailing partial page should count, expected 1, got %d", last)
	}
}

func TestTruncate(t *testing.T) {
	s := tempSwapper(t)

	for i := primitives.PageID(0); i < 5; i++ {
		if err := s.Write(i, pageFilled(byte(i))); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	if err := s.Truncate(2); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	last, err := s.LastPageID()
	if err != nil {
		t.Fatalf("LastPageID failed: %v", err)
	}
	if last != 1 {
		t.Errorf("expected last page 1 after truncate, got %d", last)
	}

	if err := s.Truncate(-1); err == nil {
		t.Error("expected error for negative page count")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := tempSwapper(t)

	if err := s.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}

	if err := s.Read(0, make([]byte, testPageSize)); err == nil {
		t.Error("expected error reading from a closed swapper")
	}
	if err := s.Force(); err == nil {
		t.Error("expected error forcing a closed swapper")
	}
}
