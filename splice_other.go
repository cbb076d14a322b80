//go:build !linux

package chunkio

import "syscall"

// platformSplice always reports ENOTSUP so callers fall back to copying.
func platformSplice(rfd int, roff *int64, wfd int, woff *int64, len int, flags int) (int, error) {
	return 0, syscall.ENOTSUP
}

const spliceFlags = 0
