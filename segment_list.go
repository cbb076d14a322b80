package chunkio

import (
	"bytes"
	"fmt"
	"math"
)

// segmentList is the ordered chain of segments behind a Buffer.
//
// Invariants:
//   - size equals the sum of Len() over the chain
//   - no segment in the chain is empty, except a tail handed out by
//     writableTail that has not been committed yet
//
// The zero value is an empty list drawing from DefaultPool.
type segmentList struct {
	head *Segment
	tail *Segment
	size int64
	pool *SegmentPool
}

func (l *segmentList) p() *SegmentPool {
	if l.pool == nil {
		return DefaultPool
	}
	return l.pool
}

func (l *segmentList) pushTail(s *Segment) {
	s.next = nil
	s.prev = l.tail
	if l.tail != nil {
		l.tail.next = s
	} else {
		l.head = s
	}
	l.tail = s
}

func (l *segmentList) unlink(s *Segment) {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		l.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	} else {
		l.tail = s.prev
	}
	s.prev, s.next = nil, nil
}

func (l *segmentList) recycleHead() {
	h := l.head
	l.unlink(h)
	l.p().Release(h)
}

// trimEmptyTail drops an uncommitted empty tail.
func (l *segmentList) trimEmptyTail() {
	if t := l.tail; t != nil && t.Len() == 0 {
		l.unlink(t)
		l.p().Release(t)
	}
}

// writableTail returns a private tail with room for at least minCap bytes.
// A shared tail with enough total room is copied first; otherwise a fresh
// segment is appended.
func (l *segmentList) writableTail(minCap int) *Segment {
	if minCap < 1 || minCap > SegmentSize {
		panic(&ArgumentError{
			Op:  "writableSegment",
			Msg: fmt.Sprintf("minimum capacity %d outside [1, %d]", minCap, SegmentSize),
		})
	}
	if t := l.tail; t != nil {
		if t.Shared() && SegmentSize-t.Len() >= minCap {
			t.unshare(l.p())
		}
		if !t.Shared() && SegmentSize-t.rear >= minCap {
			return t
		}
	}
	s := l.p().Acquire()
	l.pushTail(s)
	return s
}

func (l *segmentList) write(p []byte) {
	for len(p) > 0 {
		t := l.writableTail(1)
		n := copy(t.c.data[t.rear:], p)
		t.rear += n
		l.size += int64(n)
		p = p[n:]
	}
}

func (l *segmentList) writeString(s string) {
	for len(s) > 0 {
		t := l.writableTail(1)
		n := copy(t.c.data[t.rear:], s)
		t.rear += n
		l.size += int64(n)
		s = s[n:]
	}
}

func (l *segmentList) writeByte(c byte) {
	t := l.writableTail(1)
	t.c.data[t.rear] = c
	t.rear++
	l.size++
}

func (l *segmentList) readByte() (byte, bool) {
	if l.size == 0 {
		return 0, false
	}
	h := l.head
	c := h.c.data[h.front]
	h.front++
	l.size--
	if h.front == h.rear {
		l.recycleHead()
	}
	return c, true
}

// read consumes up to len(p) bytes into p and returns the count.
func (l *segmentList) read(p []byte) int {
	n := 0
	for n < len(p) && l.size > 0 {
		h := l.head
		m := copy(p[n:], h.c.data[h.front:h.rear])
		h.front += m
		l.size -= int64(m)
		n += m
		if h.front == h.rear {
			l.recycleHead()
		}
	}
	return n
}

// remove discards up to n bytes from the head and returns how many were dropped.
func (l *segmentList) remove(n int64) int64 {
	var removed int64
	for removed < n && l.size > 0 {
		h := l.head
		m := min(int64(h.Len()), n-removed)
		h.front += int(m)
		l.size -= m
		removed += m
		if h.front == h.rear {
			l.recycleHead()
		}
	}
	return removed
}

func (l *segmentList) has(n int64) bool {
	return l.size >= n
}

func (l *segmentList) available() int64 {
	return l.size
}

func (l *segmentList) peek() (byte, bool) {
	if l.size == 0 {
		return 0, false
	}
	return l.head.c.data[l.head.front], true
}

// getByte walks from whichever end is closer to i.
func (l *segmentList) getByte(i int64) byte {
	checkOffsetAndCount("getByte", l.size, i, 1)
	if i < l.size/2 {
		for s := l.head; ; s = s.next {
			if n := int64(s.Len()); i >= n {
				i -= n
				continue
			}
			return s.c.data[s.front+int(i)]
		}
	}
	off := l.size
	for s := l.tail; ; s = s.prev {
		off -= int64(s.Len())
		if i >= off {
			return s.c.data[s.front+int(i-off)]
		}
	}
}

// seek returns the segment containing absolute offset off and the absolute
// offset of that segment's first readable byte. It returns nil past the end.
func (l *segmentList) seek(off int64) (*Segment, int64) {
	var start int64
	for s := l.head; s != nil; s = s.next {
		end := start + int64(s.Len())
		if off < end {
			return s, start
		}
		start = end
	}
	return nil, start
}

func (l *segmentList) indexOfByte(c byte, from, to int64) int64 {
	if from < 0 {
		panic(&ArgumentError{Op: "indexOf", Msg: "fromIndex < 0"})
	}
	if from > to {
		panic(&ArgumentError{Op: "indexOf", Msg: fmt.Sprintf("fromIndex > toIndex: %d > %d", from, to)})
	}
	to = min(to, l.size)
	if from >= to {
		return -1
	}
	s, start := l.seek(from)
	for ; s != nil && start < to; s = s.next {
		data := s.Bytes()
		lo := 0
		if from > start {
			lo = int(from - start)
		}
		hi := len(data)
		if start+int64(hi) > to {
			hi = int(to - start)
		}
		if i := bytes.IndexByte(data[lo:hi], c); i >= 0 {
			return start + int64(lo+i)
		}
		start += int64(len(data))
	}
	return -1
}

// matchAt reports whether pattern occurs at storage index pos of s, following
// the chain when the match runs past the segment's end.
func matchAt(s *Segment, pos int, pattern []byte) bool {
	for len(pattern) > 0 {
		if s == nil {
			return false
		}
		n := min(s.rear-pos, len(pattern))
		if !bytes.Equal(s.c.data[pos:pos+n], pattern[:n]) {
			return false
		}
		pattern = pattern[n:]
		if s = s.next; s != nil {
			pos = s.front
		}
	}
	return true
}

func (l *segmentList) indexOf(pattern []byte, from int64) int64 {
	if len(pattern) == 0 {
		panic(&ArgumentError{Op: "indexOf", Msg: "pattern is empty"})
	}
	if from < 0 {
		panic(&ArgumentError{Op: "indexOf", Msg: "fromIndex < 0"})
	}
	last := l.size - int64(len(pattern))
	if from > last {
		return -1
	}
	first := pattern[0]
	s, start := l.seek(from)
	for ; s != nil && start <= last; s = s.next {
		data := s.Bytes()
		lo := 0
		if from > start {
			lo = int(from - start)
		}
		hi := len(data)
		if start+int64(hi) > last+1 {
			hi = int(last + 1 - start)
		}
		for lo < hi {
			i := bytes.IndexByte(data[lo:hi], first)
			if i < 0 {
				break
			}
			pos := lo + i
			if matchAt(s, s.front+pos, pattern) {
				return start + int64(pos)
			}
			lo = pos + 1
		}
		start += int64(len(data))
	}
	return -1
}

func (l *segmentList) indexOfElement(set []byte, from int64) int64 {
	if from < 0 {
		panic(&ArgumentError{Op: "indexOfElement", Msg: "fromIndex < 0"})
	}
	switch len(set) {
	case 0:
		return -1
	case 1:
		return l.indexOfByte(set[0], from, math.MaxInt64)
	}
	var table [256]bool
	for _, c := range set {
		table[c] = true
	}
	s, start := l.seek(from)
	for ; s != nil; s = s.next {
		data := s.Bytes()
		lo := 0
		if from > start {
			lo = int(from - start)
		}
		for i := lo; i < len(data); i++ {
			if table[data[i]] {
				return start + int64(i)
			}
		}
		start += int64(len(data))
	}
	return -1
}

// rangeEquals reports whether the bytes at off equal pattern. Callers check bounds.
func (l *segmentList) rangeEquals(off int64, pattern []byte) bool {
	if len(pattern) == 0 {
		return true
	}
	s, start := l.seek(off)
	if s == nil {
		return false
	}
	return matchAt(s, s.front+int(off-start), pattern)
}

// clone copies the chain structure; every new segment shares its storage.
func (l *segmentList) clone() segmentList {
	c := segmentList{pool: l.pool, size: l.size}
	for s := l.head; s != nil; s = s.next {
		if s.Len() > 0 {
			c.pushTail(s.share())
		}
	}
	return c
}

// copyRange appends shared views of [off, off+n) to dst.
func (l *segmentList) copyRange(dst *segmentList, off, n int64) {
	if n == 0 {
		return
	}
	s, start := l.seek(off)
	skip := int(off - start)
	for ; n > 0 && s != nil; s = s.next {
		c := s.share()
		c.front += skip
		if int64(c.Len()) > n {
			c.rear = c.front + int(n)
		}
		if c.Len() == 0 {
			l.p().Release(c)
			skip = 0
			continue
		}
		n -= int64(c.Len())
		dst.size += int64(c.Len())
		dst.pushTail(c)
		skip = 0
	}
}

// moveTo relinks the first n bytes onto dst without copying whole segments.
// A head segment straddling the boundary is split.
func (l *segmentList) moveTo(dst *segmentList, n int64) {
	for n > 0 {
		h := l.head
		if m := int64(h.Len()); n < m {
			prefix := h.split(l.p(), int(n))
			l.size -= n
			dst.appendSegment(prefix)
			return
		}
		m := int64(h.Len())
		l.unlink(h)
		l.size -= m
		dst.appendSegment(h)
		n -= m
	}
}

// appendSegment links s as the new tail, folding it into the previous tail
// when the two fit in one chunk. An empty tail is dropped first so only the
// tail may ever be empty.
func (l *segmentList) appendSegment(s *Segment) {
	l.trimEmptyTail()
	l.size += int64(s.Len())
	prev := l.tail
	l.pushTail(s)
	if s.compactInto(prev) {
		l.unlink(s)
		l.p().Release(s)
	}
}

// completeSegmentBytes is the byte count excluding a private, partially
// filled tail that further writes would still append to.
func (l *segmentList) completeSegmentBytes() int64 {
	n := l.size
	if t := l.tail; t != nil && t.rear < SegmentSize && !t.Shared() {
		n -= int64(t.Len())
	}
	return n
}

func (l *segmentList) clear() {
	for l.head != nil {
		l.recycleHead()
	}
	l.size = 0
}
