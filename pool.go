package chunkio

import (
	"sync"
	"sync/atomic"
)

// DefaultPoolCapacity bounds the process-wide pool at 64 chunks (512 KiB).
const DefaultPoolCapacity = 64

// DefaultPool is the process-wide segment pool used by buffers that were not
// given one explicitly.
var DefaultPool = NewSegmentPool(DefaultPoolCapacity)

// SegmentPool is a bounded free list of segment storage. Acquire and Release
// are safe for concurrent use; a single mutex guards the free list.
type SegmentPool struct {
	mu       sync.Mutex
	free     []*chunk
	capacity int

	metrics atomic.Pointer[Metrics]

	hits     atomic.Uint64
	misses   atomic.Uint64
	recycled atomic.Uint64
	dropped  atomic.Uint64
}

// PoolStats is a point-in-time view of a pool's counters.
type PoolStats struct {
	Hits     uint64 // Acquire served from the free list
	Misses   uint64 // Acquire had to allocate
	Recycled uint64 // storage returned to the free list
	Dropped  uint64 // storage left to the GC because the pool was full
	Idle     int    // chunks currently on the free list
}

// NewSegmentPool creates a pool holding at most capacity idle chunks.
// A capacity of zero disables pooling: every Acquire allocates.
func NewSegmentPool(capacity int) *SegmentPool {
	if capacity < 0 {
		panic(&ArgumentError{Op: "NewSegmentPool", Msg: "negative capacity"})
	}
	return &SegmentPool{capacity: capacity}
}

// SetMetrics attaches collectors that mirror the pool counters. Pass nil to detach.
func (p *SegmentPool) SetMetrics(m *Metrics) {
	p.metrics.Store(m)
}

// Acquire returns an empty, private segment, reusing pooled storage when available.
func (p *SegmentPool) Acquire() *Segment {
	var c *chunk
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		c = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	m := p.metrics.Load()
	if c == nil {
		c = new(chunk)
		p.misses.Add(1)
		m.poolMiss()
	} else {
		p.hits.Add(1)
		m.poolHit()
	}
	c.refs.Store(1)
	return &Segment{c: c}
}

// Release unlinks s, resets its window and drops its reference on the
// underlying storage. The storage is pooled only when no other segment still
// views it and the pool has room. s must not be used afterwards.
func (p *SegmentPool) Release(s *Segment) {
	if s == nil || s.c == nil {
		return
	}
	c := s.c
	s.c = nil
	s.front, s.rear = 0, 0
	s.prev, s.next = nil, nil
	p.recycle(c)
}

func (p *SegmentPool) recycle(c *chunk) {
	if c.refs.Add(-1) != 0 {
		return
	}
	m := p.metrics.Load()
	p.mu.Lock()
	if len(p.free) >= p.capacity {
		p.mu.Unlock()
		p.dropped.Add(1)
		m.poolDrop()
		return
	}
	p.free = append(p.free, c)
	p.mu.Unlock()
	p.recycled.Add(1)
	m.poolRecycle()
}

// Stats returns the pool counters.
func (p *SegmentPool) Stats() PoolStats {
	p.mu.Lock()
	idle := len(p.free)
	p.mu.Unlock()
	return PoolStats{
		Hits:     p.hits.Load(),
		Misses:   p.misses.Load(),
		Recycled: p.recycled.Load(),
		Dropped:  p.dropped.Load(),
		Idle:     idle,
	}
}
