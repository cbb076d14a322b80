package chunkio

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeout_FireAt(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, ok := NoTimeout.FireAt(now)
	assert.False(t, ok)
	assert.False(t, NoTimeout.Enabled())

	at, ok := NoTimeout.WithTimeout(time.Second).FireAt(now)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Second), at)

	at, ok = NoTimeout.WithDeadline(now.Add(time.Minute)).FireAt(now)
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), at)

	// Both set: the earlier bound wins.
	both := NoTimeout.WithTimeout(time.Second).WithDeadline(now.Add(time.Minute))
	at, _ = both.FireAt(now)
	assert.Equal(t, now.Add(time.Second), at)
	at, _ = both.WithTimeout(time.Hour).FireAt(now)
	assert.Equal(t, now.Add(time.Minute), at)
}

func TestTimeout_Builders(t *testing.T) {
	now := time.Now()
	tm := NoTimeout.WithTimeout(time.Second).DeadlineAfter(now, time.Minute)

	assert.Equal(t, time.Second, tm.Duration())
	dl, ok := tm.Deadline()
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), dl)

	cleared := tm.ClearTimeout().ClearDeadline()
	assert.False(t, cleared.Enabled())
	assert.Equal(t, time.Second, tm.Duration(), "builders return copies")

	assert.Equal(t, time.Duration(0), tm.WithTimeout(0).Duration())

	assertPanicsWith[*ArgumentError](t, func() { NoTimeout.WithTimeout(-1) })
	assertPanicsWith[*ArgumentError](t, func() { NoTimeout.DeadlineAfter(now, 0) })
}

func TestTimeout_Reached(t *testing.T) {
	now := time.Now()
	assert.NoError(t, NoTimeout.Reached(now))
	assert.NoError(t, NoTimeout.WithTimeout(time.Nanosecond).Reached(now), "duration alone never trips Reached")
	assert.NoError(t, NoTimeout.WithDeadline(now.Add(time.Second)).Reached(now))

	err := NoTimeout.WithDeadline(now).Reached(now)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)

	var timeoutErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, timeoutErr.Timeout())
}

func TestTimeout_Wait(t *testing.T) {
	ready := make(chan struct{})
	close(ready)
	assert.NoError(t, NoTimeout.Wait(context.Background(), ready))

	start := time.Now()
	err := NoTimeout.WithTimeout(20*time.Millisecond).Wait(context.Background(), make(chan struct{}))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NoTimeout.Wait(ctx, make(chan struct{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTimeout_Context(t *testing.T) {
	ctx, cancel := NoTimeout.WithTimeout(time.Hour).Context(context.Background())
	defer cancel()
	dl, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), dl, time.Minute)

	ctx, cancel = NoTimeout.Context(context.Background())
	_, ok = ctx.Deadline()
	assert.False(t, ok)
	cancel()
	assert.Error(t, ctx.Err())
}

func TestErrors_Wrapping(t *testing.T) {
	eos := &EndOfStreamError{Op: "Require", Want: 4, Have: 1}
	assert.ErrorIs(t, eos, io.EOF)
	assert.Equal(t, "chunkio: Require: end of stream: want 4 bytes, have 1", eos.Error())

	cause := errors.New("socket closed")
	te := &TimeoutError{Cause: cause}
	assert.ErrorIs(t, te, cause)
	assert.Equal(t, "chunkio: timeout: socket closed", te.Error())
	assert.Equal(t, "chunkio: timeout", (&TimeoutError{}).Error())

	be := &BoundsError{Op: "Skip", Size: 3, Offset: 1, Count: 5}
	assert.Equal(t, "chunkio: Skip: out of range: size=3 offset=1 byteCount=5", be.Error())
}
