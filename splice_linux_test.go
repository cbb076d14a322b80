//go:build linux

package chunkio

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processCPU(t *testing.T) time.Duration {
	t.Helper()
	var ru syscall.Rusage
	require.NoError(t, syscall.Getrusage(syscall.RUSAGE_SELF, &ru))
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
}

func TestCopy_IdleUnixConnsParkUntilDeadline(t *testing.T) {
	_, inServer := unixSocketPair(t)
	outClient, _ := unixSocketPair(t)

	const wait = 300 * time.Millisecond
	src := ReaderSource(inServer, NoTimeout.WithDeadline(time.Now().Add(wait)))
	dst := WriterSink(outClient, NoTimeout)

	cpuBefore := processCPU(t)
	start := time.Now()
	n, err := Copy(dst, src)
	elapsed := time.Since(start)
	cpu := processCPU(t) - cpuBefore

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, elapsed, wait-50*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Less(t, cpu, wait/2, "an idle copy must not spin")
}

func TestSpliceConn_HonorsConnDeadline(t *testing.T) {
	_, inServer := unixSocketPair(t)
	outClient, _ := unixSocketPair(t)

	require.NoError(t, inServer.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err := SpliceConn(outClient, inServer)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}
