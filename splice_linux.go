//go:build linux

package chunkio

import (
	"golang.org/x/sys/unix"
)

// platformSplice wraps unix.Splice, narrowing the count to int.
func platformSplice(rfd int, roff *int64, wfd int, woff *int64, len int, flags int) (int, error) {
	n, err := unix.Splice(rfd, roff, wfd, woff, len, flags)
	return int(n), err
}

// The pipe end never blocks; the sockets park on the runtime poller instead.
const spliceFlags = unix.SPLICE_F_MOVE | unix.SPLICE_F_NONBLOCK
