package chunkio

import (
	"context"
	"errors"
	"time"
)

// Timeout is a policy for how long a blocking operation may take. It holds a
// relative duration and an absolute deadline, either of which may be unset.
// When both are set the earlier bound wins.
//
// Timeout is a value: the With/Clear methods return modified copies.
type Timeout struct {
	timeout     time.Duration
	deadline    time.Time
	hasDeadline bool
}

// NoTimeout never expires.
var NoTimeout = Timeout{}

var errDeadlineReached = errors.New("deadline reached")

// WithTimeout returns t bounded by d per operation. Zero clears the bound.
// It panics with an ArgumentError when d is negative.
func (t Timeout) WithTimeout(d time.Duration) Timeout {
	if d < 0 {
		panic(&ArgumentError{Op: "WithTimeout", Msg: "timeout < 0: " + d.String()})
	}
	t.timeout = d
	return t
}

// WithDeadline returns t bounded by the absolute instant at.
func (t Timeout) WithDeadline(at time.Time) Timeout {
	t.deadline = at
	t.hasDeadline = true
	return t
}

// DeadlineAfter returns t with a deadline d after now.
func (t Timeout) DeadlineAfter(now time.Time, d time.Duration) Timeout {
	if d <= 0 {
		panic(&ArgumentError{Op: "DeadlineAfter", Msg: "duration <= 0: " + d.String()})
	}
	return t.WithDeadline(now.Add(d))
}

// ClearTimeout returns t without its duration bound.
func (t Timeout) ClearTimeout() Timeout {
	t.timeout = 0
	return t
}

// ClearDeadline returns t without its deadline.
func (t Timeout) ClearDeadline() Timeout {
	t.deadline = time.Time{}
	t.hasDeadline = false
	return t
}

// Duration returns the per-operation bound, or 0 when unset.
func (t Timeout) Duration() time.Duration { return t.timeout }

// Deadline returns the absolute deadline and whether one is set.
func (t Timeout) Deadline() (time.Time, bool) { return t.deadline, t.hasDeadline }

// Enabled reports whether either bound is set.
func (t Timeout) Enabled() bool { return t.timeout != 0 || t.hasDeadline }

// FireAt returns the instant an operation starting at now must end by: the
// earlier of now+Duration and the deadline, whichever are set. ok is false
// when neither is set.
func (t Timeout) FireAt(now time.Time) (at time.Time, ok bool) {
	switch {
	case t.timeout != 0 && t.hasDeadline:
		at = now.Add(t.timeout)
		if t.deadline.Before(at) {
			at = t.deadline
		}
		return at, true
	case t.timeout != 0:
		return now.Add(t.timeout), true
	case t.hasDeadline:
		return t.deadline, true
	}
	return time.Time{}, false
}

// Reached returns a *TimeoutError when the deadline is at or before now.
// Only the deadline is consulted; the duration bound applies per operation.
func (t Timeout) Reached(now time.Time) error {
	if t.hasDeadline && !now.Before(t.deadline) {
		return &TimeoutError{Cause: errDeadlineReached}
	}
	return nil
}

// Context derives a context that is cancelled at the effective bound.
// With no bound set it is a plain cancelable child of parent.
func (t Timeout) Context(parent context.Context) (context.Context, context.CancelFunc) {
	if at, ok := t.FireAt(time.Now()); ok {
		return context.WithDeadline(parent, at)
	}
	return context.WithCancel(parent)
}

// Wait blocks until ready is signaled, the effective bound elapses, or ctx is
// done. An elapsed bound is reported as a *TimeoutError; a done ctx as its error.
func (t Timeout) Wait(ctx context.Context, ready <-chan struct{}) error {
	at, ok := t.FireAt(time.Now())
	if !ok {
		select {
		case <-ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(time.Until(at))
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return &TimeoutError{Cause: context.DeadlineExceeded}
	case <-ctx.Done():
		return ctx.Err()
	}
}
