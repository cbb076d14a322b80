package chunkio

import (
	"time"

	"github.com/google/btree"
)

// TimeoutWriteSize caps the bytes a guarded sink writes under one Enter, so a
// slow peer is detected per piece rather than once per huge write.
const TimeoutWriteSize = 64 * 1024

type timeoutState uint8

const (
	stateIdle timeoutState = iota
	stateQueued
	stateFired
)

func (s timeoutState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateQueued:
		return "queued"
	case stateFired:
		return "fired"
	}
	return "unknown"
}

// AsyncTimeout bounds blocking calls by firing a hook from a Watchdog when a
// call outlives its Timeout policy.
//
// Bracket each call with Enter and Exit. Exit reports whether the node fired
// while the call was in flight. Firing does not interrupt the call: the hook
// is expected to unblock it, typically by closing the underlying socket. The
// call may still complete successfully a moment after its node fired; Exit
// then returns true and the success must be treated as a timeout.
//
// An AsyncTimeout guards one call at a time.
type AsyncTimeout struct {
	w       *Watchdog
	policy  Timeout
	onFired func()
	newErr  func(cause error) error

	// guarded by w.mu
	state  timeoutState
	fireAt time.Time
	seq    uint64
}

// AsyncTimeoutOption configures an AsyncTimeout.
type AsyncTimeoutOption func(*AsyncTimeout)

// OnFired sets the hook the watchdog runs when the node fires. It runs on the
// watchdog goroutine without the watchdog lock held and must not block for long.
func OnFired(fn func()) AsyncTimeoutOption {
	return func(a *AsyncTimeout) { a.onFired = fn }
}

// WithTimeoutError replaces the error guarded calls return after firing.
// fn receives the delegate's own error, which may be nil.
func WithTimeoutError(fn func(cause error) error) AsyncTimeoutOption {
	return func(a *AsyncTimeout) { a.newErr = fn }
}

// NewAsyncTimeout returns an idle node scheduled on w.
func (w *Watchdog) NewAsyncTimeout(policy Timeout, opts ...AsyncTimeoutOption) *AsyncTimeout {
	a := &AsyncTimeout{
		w:      w,
		policy: policy,
		newErr: func(cause error) error { return &TimeoutError{Cause: cause} },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Less orders nodes by fireAt, then by insertion order.
func (a *AsyncTimeout) Less(than btree.Item) bool {
	b := than.(*AsyncTimeout)
	if !a.fireAt.Equal(b.fireAt) {
		return a.fireAt.Before(b.fireAt)
	}
	return a.seq < b.seq
}

// Timeout returns the node's policy.
func (a *AsyncTimeout) Timeout() Timeout {
	a.w.mu.Lock()
	defer a.w.mu.Unlock()
	return a.policy
}

// SetTimeout replaces the policy used by the next Enter.
func (a *AsyncTimeout) SetTimeout(t Timeout) {
	a.w.mu.Lock()
	a.policy = t
	a.w.mu.Unlock()
}

// Enter schedules the node. It is a no-op when the policy sets no bound.
// Entering a node that is queued or fired and not yet exited panics with a
// *ProtocolStateError.
func (a *AsyncTimeout) Enter() {
	w := a.w
	w.mu.Lock()
	defer w.mu.Unlock()
	if a.state != stateIdle {
		panic(&ProtocolStateError{Msg: "unbalanced enter/exit: node is " + a.state.String()})
	}
	at, ok := a.policy.FireAt(w.clock.Now())
	if !ok {
		return
	}
	a.fireAt = at
	if w.schedule(a) {
		a.state = stateQueued
	}
}

// Exit unschedules the node and returns it to idle. It reports true when the
// node fired before Exit. Exit on an idle node returns false.
func (a *AsyncTimeout) Exit() bool {
	w := a.w
	w.mu.Lock()
	defer w.mu.Unlock()
	switch a.state {
	case stateQueued:
		w.cancel(a)
		a.state = stateIdle
		return false
	case stateFired:
		a.state = stateIdle
		return true
	}
	return false
}

// exitWith exits and, if the node fired, converts err into the timeout error.
func (a *AsyncTimeout) exitWith(err error) error {
	if a.Exit() {
		return a.newErr(err)
	}
	return err
}

// Source guards every call on src with this node.
func (a *AsyncTimeout) Source(src Source) Source {
	return &guardedSource{t: a, src: src}
}

// Sink guards every call on sink with this node. Writes are split into pieces
// of at most TimeoutWriteSize bytes, each under its own Enter.
func (a *AsyncTimeout) Sink(sink Sink) Sink {
	return &guardedSink{t: a, sink: sink}
}

type guardedSource struct {
	t   *AsyncTimeout
	src Source
}

func (g *guardedSource) ReadBuffer(sink *Buffer, n int64) (read int64, err error) {
	g.t.Enter()
	defer func() { err = g.t.exitWith(err) }()
	return g.src.ReadBuffer(sink, n)
}

func (g *guardedSource) Close() (err error) {
	g.t.Enter()
	defer func() { err = g.t.exitWith(err) }()
	return g.src.Close()
}

func (g *guardedSource) Timeout() Timeout { return g.t.Timeout() }

type guardedSink struct {
	t    *AsyncTimeout
	sink Sink
}

func (g *guardedSink) WriteBuffer(src *Buffer, n int64) error {
	checkOffsetAndCount("WriteBuffer", src.Size(), 0, n)
	for n > 0 {
		// Cut at segment boundaries so each piece relinks whole segments.
		var piece int64
		for s := src.Head(); piece < TimeoutWriteSize; s = s.next {
			piece += int64(s.Len())
			if piece >= n {
				piece = n
				break
			}
		}
		if err := g.writePiece(src, piece); err != nil {
			return err
		}
		n -= piece
	}
	return nil
}

func (g *guardedSink) writePiece(src *Buffer, n int64) (err error) {
	g.t.Enter()
	defer func() { err = g.t.exitWith(err) }()
	return g.sink.WriteBuffer(src, n)
}

func (g *guardedSink) Flush() (err error) {
	g.t.Enter()
	defer func() { err = g.t.exitWith(err) }()
	return g.sink.Flush()
}

func (g *guardedSink) Close() (err error) {
	g.t.Enter()
	defer func() { err = g.t.exitWith(err) }()
	return g.sink.Close()
}

func (g *guardedSink) Timeout() Timeout { return g.t.Timeout() }
