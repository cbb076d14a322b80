// Package chunkio provides a segmented byte queue and a deadline scheduler for
// bounding blocking I/O. It is the plumbing that codecs (gzip, deflate,
// hashing) and stream adapters (files, sockets) are written through.
//
// Key features:
//   - Buffer: a mutable byte queue over pooled 8 KiB segments
//   - Copy-on-write Clone in O(segment count), no bytes copied
//   - Big- and little-endian integer codecs, decimal and hex text codecs
//     with 64-bit overflow detection, UTF-8 and x/text charsets
//   - Cross-segment search: IndexOf, IndexOfElement, Select
//   - Zero-copy segment traversal (Head/Next) and WritableSegment/Commit
//     for codecs that read or produce bytes in place
//   - Automatic writev() when draining into a net.Conn or *os.File
//   - Timeout, AsyncTimeout and Watchdog: a single background loop that fires
//     timeouts in deadline order so a stuck call can be unblocked
//
// Thread Safety:
//
//	Buffer is NOT safe for concurrent use. Use one Buffer per goroutine
//	or external synchronization. SegmentPool and Watchdog are thread-safe.
//
// Platform Support:
//   - Copy between two Unix socket connections uses splice(2) on Linux
//   - Everything else is cross-platform
package chunkio

import (
	"io"
	"math"
	"net"
	"os"
	"strings"
	"sync"
)

// Buffer is a mutable byte queue backed by a chain of pooled segments.
// Writes append at the tail, reads consume from the head, and exhausted
// segments go back to the pool.
//
// The zero value is an empty buffer drawing from DefaultPool.
//
// Buffer is both a Source and a Sink: ReadBuffer and WriteBuffer move whole
// segments between buffers instead of copying bytes.
type Buffer struct {
	list     segmentList
	released bool
}

// bufferPool stores reusable Buffer instances to reduce allocation overhead.
var bufferPool = sync.Pool{
	New: func() any {
		return new(Buffer)
	},
}

// New returns an empty Buffer from the object pool.
// Call Release() to return it when done.
func New() *Buffer {
	buf := bufferPool.Get().(*Buffer)
	buf.released = false
	buf.list = segmentList{}
	return buf
}

// NewWithPool returns an empty Buffer that acquires and releases segments
// through p instead of DefaultPool.
func NewWithPool(p *SegmentPool) *Buffer {
	return &Buffer{list: segmentList{pool: p}}
}

// Size returns the number of readable bytes.
func (b *Buffer) Size() int64 {
	return b.list.available()
}

// Len returns the number of readable bytes as an int.
func (b *Buffer) Len() int {
	return int(b.list.available())
}

// Exhausted reports whether the buffer holds no bytes.
func (b *Buffer) Exhausted() bool {
	return b.list.size == 0
}

// Reset discards the contents and returns every segment to the pool.
// The buffer remains usable.
func (b *Buffer) Reset() {
	b.list.clear()
}

// Release resets the buffer and returns it to the object pool.
// The buffer must not be used after calling Release.
func (b *Buffer) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	b.Reset()
	bufferPool.Put(b)
}

// checkReleased panics on use of a buffer that went back to the object pool.
func (b *Buffer) checkReleased() {
	if b.released {
		panic("chunkio: use of released buffer")
	}
}

// =============================================================================
// io interfaces
// =============================================================================

// Write appends a copy of p. It always returns len(p), nil.
func (b *Buffer) Write(p []byte) (int, error) {
	b.checkReleased()
	b.list.write(p)
	return len(p), nil
}

// WriteString appends the bytes of s. Implements io.StringWriter.
func (b *Buffer) WriteString(s string) (int, error) {
	b.checkReleased()
	b.list.writeString(s)
	return len(s), nil
}

// WriteByte appends a single byte. Implements io.ByteWriter.
//
// Performance: O(1) amortized, one segment acquisition per SegmentSize bytes
func (b *Buffer) WriteByte(c byte) error {
	b.checkReleased()
	b.list.writeByte(c)
	return nil
}

// Read implements io.Reader. Returns io.EOF when the buffer is empty and p is not.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.list.size == 0 {
		return 0, io.EOF
	}
	return b.list.read(p), nil
}

// ReadInto consumes up to n bytes into p[off:off+n] and returns the count.
// It panics with a BoundsError if the range does not fit in p, and returns
// io.EOF when the buffer is empty and n > 0.
func (b *Buffer) ReadInto(p []byte, off, n int) (int, error) {
	checkOffsetAndCount("ReadInto", int64(len(p)), int64(off), int64(n))
	return b.Read(p[off : off+n])
}

// ReadByte consumes one byte. Returns io.EOF when the buffer is empty.
//
// Performance: O(1), zero allocations
func (b *Buffer) ReadByte() (byte, error) {
	c, ok := b.list.readByte()
	if !ok {
		return 0, io.EOF
	}
	return c, nil
}

// PeekByte returns the next byte without consuming it.
func (b *Buffer) PeekByte() (byte, error) {
	c, ok := b.list.peek()
	if !ok {
		return 0, io.EOF
	}
	return c, nil
}

// ReadFrom reads from r until EOF, filling pooled segments directly.
// EOF is not returned as an error.
func (b *Buffer) ReadFrom(r io.Reader) (n int64, err error) {
	b.checkReleased()
	defer b.list.trimEmptyTail()
	for {
		t := b.list.writableTail(1)
		nr, er := r.Read(t.c.data[t.rear:])
		if nr > 0 {
			t.rear += nr
			b.list.size += int64(nr)
			n += int64(nr)
		}
		if er != nil {
			if er != io.EOF {
				err = er
			}
			return n, err
		}
	}
}

// WriteTo drains the buffer into w. When w is a net.Conn or *os.File the
// readable windows go out in a single writev() call.
//
// Bytes are consumed as they are written, so a partial write leaves the
// unwritten remainder in the buffer.
func (b *Buffer) WriteTo(w io.Writer) (n int64, err error) {
	if b.list.size == 0 {
		return 0, nil
	}

	if useWritev(w) {
		buffers := b.peekNetBuffers()
		written, err := buffers.WriteTo(w)
		if written > 0 {
			b.list.remove(written)
		}
		return written, err
	}

	for b.list.size > 0 {
		written, wErr := w.Write(b.list.head.Bytes())
		n += int64(written)
		if written > 0 {
			b.list.remove(int64(written))
		}
		if wErr != nil {
			return n, wErr
		}
		if written == 0 {
			return n, io.ErrShortWrite
		}
	}
	return n, nil
}

// peekNetBuffers returns the readable windows as net.Buffers WITHOUT
// mutating state, so WriteTo can consume only what was actually written.
// The data itself is not copied, only the slice headers.
func (b *Buffer) peekNetBuffers() net.Buffers {
	buffers := make(net.Buffers, 0, 8)
	for s := b.list.head; s != nil; s = s.next {
		buffers = append(buffers, s.Bytes())
	}
	return buffers
}

// useWritev determines if the writer supports writev() optimization.
func useWritev(w io.Writer) bool {
	switch w.(type) {
	case net.Conn, *os.File:
		return true
	default:
		return false
	}
}

// =============================================================================
// Source and Sink
// =============================================================================

// ReadBuffer moves up to n bytes into sink. Returns io.EOF when the buffer is
// empty. Implements Source.
func (b *Buffer) ReadBuffer(sink *Buffer, n int64) (int64, error) {
	if n < 0 {
		panic(&ArgumentError{Op: "ReadBuffer", Msg: "byteCount < 0"})
	}
	if b.list.size == 0 {
		return 0, io.EOF
	}
	n = min(n, b.list.size)
	if err := sink.WriteBuffer(b, n); err != nil {
		return 0, err
	}
	return n, nil
}

// WriteBuffer moves exactly n bytes from src to the end of b. Whole segments
// are relinked; only a segment straddling the boundary is split. Implements Sink.
func (b *Buffer) WriteBuffer(src *Buffer, n int64) error {
	if src == b {
		panic(&ArgumentError{Op: "WriteBuffer", Msg: "source == this"})
	}
	b.checkReleased()
	checkOffsetAndCount("WriteBuffer", src.list.size, 0, n)
	src.list.moveTo(&b.list, n)
	return nil
}

// Flush is a no-op. Implements Sink.
func (b *Buffer) Flush() error { return nil }

// Close is a no-op; the contents stay readable. Implements Source and Sink.
func (b *Buffer) Close() error { return nil }

// Timeout returns NoTimeout: buffer operations never block.
func (b *Buffer) Timeout() Timeout { return NoTimeout }

// =============================================================================
// Structural operations
// =============================================================================

// Clone returns an independent buffer with the same contents. Storage is shared
// copy-on-write, so Clone costs O(segment count) and copies no bytes. Later
// writes to either buffer never affect the other.
func (b *Buffer) Clone() *Buffer {
	return &Buffer{list: b.list.clone()}
}

// CopyTo appends bytes [off, off+n) of b to dst without consuming them.
// Storage is shared copy-on-write.
func (b *Buffer) CopyTo(dst *Buffer, off, n int64) {
	checkOffsetAndCount("CopyTo", b.list.size, off, n)
	if dst == b {
		panic(&ArgumentError{Op: "CopyTo", Msg: "destination == this"})
	}
	b.list.copyRange(&dst.list, off, n)
}

// Snapshot returns the current contents as an immutable ByteString.
// Later mutation of the buffer does not affect it.
func (b *Buffer) Snapshot() ByteString {
	return ByteString{data: b.Bytes()}
}

// Bytes returns a copy of the readable bytes without consuming them.
func (b *Buffer) Bytes() []byte {
	if b.list.size == 0 {
		return nil
	}
	out := make([]byte, 0, b.list.size)
	for s := b.list.head; s != nil; s = s.next {
		out = append(out, s.Bytes()...)
	}
	return out
}

// String returns the readable bytes as a string without consuming them.
// Implements fmt.Stringer.
//
// WARNING: This allocates. Use for debugging/logging only.
func (b *Buffer) String() string {
	var sb strings.Builder
	sb.Grow(int(b.list.size))
	for s := b.list.head; s != nil; s = s.next {
		sb.Write(s.Bytes())
	}
	return sb.String()
}

// WriteRangeTo writes bytes [off, off+n) to w without consuming them, one
// segment window per Write call. Checksums and digests are fed this way.
func (b *Buffer) WriteRangeTo(w io.Writer, off, n int64) (int64, error) {
	checkOffsetAndCount("WriteRangeTo", b.list.size, off, n)
	if n == 0 {
		return 0, nil
	}
	var written int64
	s, start := b.list.seek(off)
	lo := int(off - start)
	for ; n > 0; s = s.next {
		data := s.Bytes()[lo:]
		data = data[:min(int64(len(data)), n)]
		m, err := w.Write(data)
		written += int64(m)
		if err != nil {
			return written, err
		}
		n -= int64(len(data))
		lo = 0
	}
	return written, nil
}

// GetByte returns the byte at index i without consuming it. It panics with a
// BoundsError when i is outside [0, Size()).
func (b *Buffer) GetByte(i int64) byte {
	return b.list.getByte(i)
}

// Skip discards n bytes. It returns an EndOfStreamError and discards nothing
// when fewer than n bytes are available.
func (b *Buffer) Skip(n int64) error {
	if n < 0 {
		panic(&ArgumentError{Op: "Skip", Msg: "byteCount < 0"})
	}
	if !b.list.has(n) {
		return &EndOfStreamError{Op: "Skip", Want: n, Have: b.list.size}
	}
	b.list.remove(n)
	return nil
}

// =============================================================================
// Segment access
// =============================================================================

// Head returns the first segment, or nil when the buffer is empty. Walk the
// chain with Segment.Next to scan the contents without copying.
func (b *Buffer) Head() *Segment {
	return b.list.head
}

// WritableSegment returns the tail segment with at least minSize bytes of
// Free space, appending a new segment when needed. Write into Free() and then
// call Commit with the number of bytes written. The segment is only valid
// until the next operation on the buffer; an uncommitted empty tail is
// ignored by reads and dropped by the next segment move.
//
// minSize must be in [1, SegmentSize].
func (b *Buffer) WritableSegment(minSize int) *Segment {
	b.checkReleased()
	return b.list.writableTail(minSize)
}

// Commit makes n bytes written into the tail segment's Free space readable.
// Committing zero bytes to an empty tail drops it.
func (b *Buffer) Commit(n int) {
	t := b.list.tail
	if t == nil {
		if n == 0 {
			return
		}
		panic(&BoundsError{Op: "Commit", Count: int64(n)})
	}
	checkOffsetAndCount("Commit", int64(len(t.Free())), 0, int64(n))
	t.rear += n
	b.list.size += int64(n)
	if n == 0 {
		b.list.trimEmptyTail()
	}
}

// completeSegmentByteCount reports how many bytes sit in segments that no
// further write will append to. BufferedSink emits those eagerly.
func (b *Buffer) completeSegmentByteCount() int64 {
	return b.list.completeSegmentBytes()
}

var _ interface {
	io.Reader
	io.Writer
	io.ByteReader
	io.ByteWriter
	io.StringWriter
	io.ReaderFrom
	io.WriterTo
	Source
	Sink
} = (*Buffer)(nil)

// maxIndex is the open upper bound used by searches without an explicit end.
const maxIndex = math.MaxInt64
