package memory

import (
	"encoding/binary"
)

// Typed page access. All values are big-endian. Every accessor is bounds
// checked against the bound page's extent: a read or write that would
// exceed it, or any access through an unbound or closed cursor, raises the
// sticky out-of-bounds flag instead of failing, and reads return zero.
// Writes additionally require a write-locked cursor; writing through a read
// cursor raises the bounds flag.
//
// The implicit-offset variants read or write at the cursor's current offset
// and advance it by the width of the value.

// readable reports whether a read of size bytes at off is in bounds,
// raising the bounds flag if not.
func (c *PageCursor) readable(off, size int) bool {
	if c.closed || c.s == nil || off < 0 || size < 0 || off+size > c.file.pageSize {
		c.oob = true
		return false
	}
	return true
}

// writable reports whether a write of size bytes at off is permitted,
// raising the bounds flag if not.
func (c *PageCursor) writable(off, size int) bool {
	if c.mode != lockWriter {
		c.oob = true
		return false
	}
	if !c.readable(off, size) {
		return false
	}
	if !c.dirtied {
		c.s.markDirty()
		c.dirtied = true
	}
	return true
}

// Offset returns the cursor's current byte offset within the page.
func (c *PageCursor) Offset() int {
	return c.offset
}

// SetOffset positions the cursor's byte offset within the page. A negative
// offset raises the bounds flag and leaves the offset at zero.
func (c *PageCursor) SetOffset(off int) {
	if off < 0 {
		c.oob = true
		c.offset = 0
		return
	}
	c.offset = off
}

// GetByteAt returns the byte at the given offset.
func (c *PageCursor) GetByteAt(off int) byte {
	if !c.readable(off, 1) {
		return 0
	}
	return c.s.buf[off]
}

// GetByte returns the byte at the current offset and advances it.
func (c *PageCursor) GetByte() byte {
	v := c.GetByteAt(c.offset)
	c.offset++
	return v
}

// PutByteAt writes a byte at the given offset.
func (c *PageCursor) PutByteAt(off int, v byte) {
	if !c.writable(off, 1) {
		return
	}
	c.s.buf[off] = v
}

// PutByte writes a byte at the current offset and advances it.
func (c *PageCursor) PutByte(v byte) {
	c.PutByteAt(c.offset, v)
	c.offset++
}

// GetShortAt returns the 16-bit value at the given offset.
func (c *PageCursor) GetShortAt(off int) int16 {
	if !c.readable(off, 2) {
		return 0
	}
	return int16(binary.BigEndian.Uint16(c.s.buf[off:]))
}

// GetShort returns the 16-bit value at the current offset and advances it.
func (c *PageCursor) GetShort() int16 {
	v := c.GetShortAt(c.offset)
	c.offset += 2
	return v
}

// PutShortAt writes a 16-bit value at the given offset.
func (c *PageCursor) PutShortAt(off int, v int16) {
	if !c.writable(off, 2) {
		return
	}
	binary.BigEndian.PutUint16(c.s.buf[off:], uint16(v))
}

// PutShort writes a 16-bit value at the current offset and advances it.
func (c *PageCursor) PutShort(v int16) {
	c.PutShortAt(c.offset, v)
	c.offset += 2
}

// GetIntAt returns the 32-bit value at the given offset.
func (c *PageCursor) GetIntAt(off int) int32 {
	if !c.readable(off, 4) {
		return 0
	}
	return int32(binary.BigEndian.Uint32(c.s.buf[off:]))
}

// GetInt returns the 32-bit value at the current offset and advances it.
func (c *PageCursor) GetInt() int32 {
	v := c.GetIntAt(c.offset)
	c.offset += 4
	return v
}

// PutIntAt writes a 32-bit value at the given offset.
func (c *PageCursor) PutIntAt(off int, v int32) {
	if !c.writable(off, 4) {
		return
	}
	binary.BigEndian.PutUint32(c.s.buf[off:], uint32(v))
}

// PutInt writes a 32-bit value at the current offset and advances it.
func (c *PageCursor) PutInt(v int32) {
	c.PutIntAt(c.offset, v)
	c.offset += 4
}

// GetLongAt returns the 64-bit value at the given offset.
func (c *PageCursor) GetLongAt(off int) int64 {
	if !c.readable(off, 8) {
		return 0
	}
	return int64(binary.BigEndian.Uint64(c.s.buf[off:]))
}

// GetLong returns the 64-bit value at the current offset and advances it.
func (c *PageCursor) GetLong() int64 {
	v := c.GetLongAt(c.offset)
	c.offset += 8
	return v
}

// PutLongAt writes a 64-bit value at the given offset.
func (c *PageCursor) PutLongAt(off int, v int64) {
	if !c.writable(off, 8) {
		return
	}
	binary.BigEndian.PutUint64(c.s.buf[off:], uint64(v))
}

// PutLong writes a 64-bit value at the current offset and advances it.
func (c *PageCursor) PutLong(v int64) {
	c.PutLongAt(c.offset, v)
	c.offset += 8
}

// GetBytesAt copies len(dst) bytes starting at the given offset into dst.
func (c *PageCursor) GetBytesAt(off int, dst []byte) {
	if !c.readable(off, len(dst)) {
		return
	}
	copy(dst, c.s.buf[off:off+len(dst)])
}

// GetBytes copies len(dst) bytes from the current offset and advances it.
func (c *PageCursor) GetBytes(dst []byte) {
	c.GetBytesAt(c.offset, dst)
	c.offset += len(dst)
}

// PutBytesAt writes src at the given offset.
func (c *PageCursor) PutBytesAt(off int, src []byte) {
	if !c.writable(off, len(src)) {
		return
	}
	copy(c.s.buf[off:], src)
}

// PutBytes writes src at the current offset and advances it.
func (c *PageCursor) PutBytes(src []byte) {
	c.PutBytesAt(c.offset, src)
	c.offset += len(src)
}

// ZapPage zero-fills the bound page. Like all writes it requires a
// write-locked cursor.
func (c *PageCursor) ZapPage() {
	if !c.writable(0, c.file.pageSize) {
		return
	}
	for i := range c.s.buf[:c.file.pageSize] {
		c.s.buf[i] = 0
	}
}
