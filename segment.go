package chunkio

import "sync/atomic"

const (
	// SegmentSize is the capacity in bytes of every segment.
	SegmentSize = 8192

	// shareMinimum is the smallest split that shares storage instead of copying.
	// Below it a copy is cheaper than pinning a whole chunk.
	shareMinimum = 1024
)

// chunk is the byte storage behind one or more segments. refs counts the
// segments viewing it; the chunk returns to a pool only when refs drops to zero.
type chunk struct {
	data [SegmentSize]byte
	refs atomic.Int32
}

// Segment is a window [front, rear) over a fixed-size chunk. Segments are
// linked into a Buffer's chain and are the unit of pooling and sharing.
//
// A segment whose chunk is viewed by another segment is shared: its bytes are
// read-only, and appending to it first copies the readable window into a
// private chunk.
//
// Segments obtained from Buffer.Head are owned by the buffer; callers may read
// Bytes but must not retain the slice past the next mutation of the buffer.
type Segment struct {
	c     *chunk
	front int
	rear  int
	prev  *Segment
	next  *Segment
}

// Bytes returns the readable window. The slice aliases segment storage.
func (s *Segment) Bytes() []byte {
	return s.c.data[s.front:s.rear]
}

// Len returns the number of readable bytes.
func (s *Segment) Len() int {
	return s.rear - s.front
}

// Free returns the writable space after the readable window. It is empty when
// the segment is shared.
func (s *Segment) Free() []byte {
	if s.Shared() {
		return nil
	}
	return s.c.data[s.rear:]
}

// Shared reports whether another segment views the same storage.
func (s *Segment) Shared() bool {
	return s.c.refs.Load() > 1
}

// Next returns the following segment in the chain, or nil.
func (s *Segment) Next() *Segment {
	return s.next
}

// share returns a new segment over the same chunk and window. No bytes are copied.
func (s *Segment) share() *Segment {
	s.c.refs.Add(1)
	return &Segment{c: s.c, front: s.front, rear: s.rear}
}

// unshare moves the readable window into a private chunk from p, dropping this
// segment's reference on the shared one.
func (s *Segment) unshare(p *SegmentPool) {
	if !s.Shared() {
		return
	}
	fresh := p.Acquire()
	n := copy(fresh.c.data[:], s.c.data[s.front:s.rear])
	old := s.c
	s.c = fresh.c
	s.front = 0
	s.rear = n
	p.recycle(old)
}

// split cuts the first n readable bytes into a new segment and advances s past
// them. Large prefixes share storage, small ones are copied.
func (s *Segment) split(p *SegmentPool, n int) *Segment {
	if n <= 0 || n > s.Len() {
		panic(&BoundsError{Op: "split", Size: int64(s.Len()), Count: int64(n)})
	}
	var prefix *Segment
	if n >= shareMinimum {
		prefix = s.share()
	} else {
		prefix = p.Acquire()
		copy(prefix.c.data[:], s.c.data[s.front:s.front+n])
	}
	prefix.rear = prefix.front + n
	s.front += n
	return prefix
}

// compactInto folds s into prev when both fit in one private chunk.
// It reports whether s was absorbed; the caller then unlinks and releases it.
func (s *Segment) compactInto(prev *Segment) bool {
	if prev == nil || prev.Shared() {
		return false
	}
	n := s.Len()
	if n > SegmentSize-prev.Len() {
		return false
	}
	if prev.rear+n > SegmentSize {
		copy(prev.c.data[:], prev.c.data[prev.front:prev.rear])
		prev.rear -= prev.front
		prev.front = 0
	}
	copy(prev.c.data[prev.rear:], s.c.data[s.front:s.rear])
	prev.rear += n
	return true
}
