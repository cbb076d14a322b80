package chunkio

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrClosed is returned by operations on a closed source, sink or watchdog.
var ErrClosed = errors.New("chunkio: closed")

// BoundsError reports an index, offset or byte count outside the valid range.
// It signals a programming error and is raised with panic, never returned.
type BoundsError struct {
	Op     string
	Size   int64
	Offset int64
	Count  int64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("chunkio: %s: out of range: size=%d offset=%d byteCount=%d",
		e.Op, e.Size, e.Offset, e.Count)
}

// ArgumentError reports an invalid argument such as an empty search pattern
// or fromIndex > toIndex. Like BoundsError it is raised with panic.
type ArgumentError struct {
	Op  string
	Msg string
}

func (e *ArgumentError) Error() string {
	return "chunkio: " + e.Op + ": " + e.Msg
}

// MalformedDataError is returned when bytes cannot be decoded as the requested
// text or number: bad decimal/hex digits, 64-bit overflow, undecodable charset
// data, or a corrupt compressed stream.
type MalformedDataError struct {
	Op  string
	Msg string
	Err error
}

func (e *MalformedDataError) Error() string {
	if e.Err != nil {
		return "chunkio: " + e.Op + ": " + e.Msg + ": " + e.Err.Error()
	}
	return "chunkio: " + e.Op + ": " + e.Msg
}

func (e *MalformedDataError) Unwrap() error { return e.Err }

// EndOfStreamError is returned when an operation needs more bytes than can
// ever be produced. It matches io.EOF under errors.Is.
type EndOfStreamError struct {
	Op   string
	Want int64
	Have int64
}

func (e *EndOfStreamError) Error() string {
	return fmt.Sprintf("chunkio: %s: end of stream: want %d bytes, have %d", e.Op, e.Want, e.Have)
}

func (e *EndOfStreamError) Unwrap() error { return io.EOF }

// ProtocolStateError reports an unbalanced Enter/Exit on an AsyncTimeout.
// It is raised with panic.
type ProtocolStateError struct {
	Msg string
}

func (e *ProtocolStateError) Error() string {
	return "chunkio: " + e.Msg
}

// TimeoutError is returned by guarded sources and sinks when their timeout
// fired while the delegate call was in flight. Cause holds the delegate's own
// outcome, which may be nil when the call completed just after firing.
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return "chunkio: timeout: " + e.Cause.Error()
	}
	return "chunkio: timeout"
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// Timeout reports true, matching the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// Is lets callers test for os.ErrDeadlineExceeded as they would for net.Conn deadlines.
func (e *TimeoutError) Is(target error) bool {
	return target == os.ErrDeadlineExceeded
}

// checkOffsetAndCount panics with a BoundsError unless [offset, offset+count)
// lies within [0, size).
func checkOffsetAndCount(op string, size, offset, count int64) {
	if offset|count < 0 || offset > size || size-offset < count {
		panic(&BoundsError{Op: op, Size: size, Offset: offset, Count: count})
	}
}
