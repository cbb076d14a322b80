package chunkio

import (
	"io"
	"net"
	"os"
	"runtime"
	"syscall"
)

// spliceChunk caps a single socket-to-pipe transfer. The kernel moves at
// most the pipe's capacity anyway.
const spliceChunk = 1 << 20

// SpliceConn moves everything from src to dst inside the kernel with
// splice(2), until src reaches EOF. No bytes pass through user space and no
// Buffer is involved.
//
// Both sockets stay non-blocking: when one side is not ready the goroutine
// parks on the runtime poller, so read and write deadlines set on the
// connections apply and an idle peer costs no CPU.
//
// Returns syscall.ENOTSUP on platforms other than Linux; callers are expected
// to fall back to a buffered copy. Copy does this automatically.
func SpliceConn(dst, src *net.UnixConn) (int64, error) {
	if dst == nil || src == nil {
		return 0, io.ErrUnexpectedEOF
	}
	if runtime.GOOS != "linux" {
		return 0, syscall.ENOTSUP
	}

	in, err := src.SyscallConn()
	if err != nil {
		return 0, err
	}
	out, err := dst.SyscallConn()
	if err != nil {
		return 0, err
	}

	// splice(2) needs a pipe on one side, so sockets meet through one.
	p, err := openSplicePipe()
	if err != nil {
		return 0, err
	}
	defer p.close()

	var total int64
	for {
		n, err := p.fill(in)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		drained, err := p.drain(out, n)
		total += int64(drained)
		if err != nil {
			return total, err
		}
	}
}

// splicePipe is the intermediate pipe of a socket-to-socket splice. Its
// descriptors are non-blocking and owned by the *os.File pair.
type splicePipe struct {
	r, w *os.File
	rfd  int
	wfd  int
}

func openSplicePipe() (*splicePipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	p := &splicePipe{r: r, w: w}
	if p.rfd, err = rawFd(r); err == nil {
		p.wfd, err = rawFd(w)
	}
	if err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

// rawFd returns f's descriptor without switching it to blocking mode, which
// (*os.File).Fd would do.
func rawFd(f *os.File) (int, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := rc.Control(func(p uintptr) { fd = int(p) }); err != nil {
		return -1, err
	}
	return fd, nil
}

func (p *splicePipe) close() {
	p.r.Close()
	p.w.Close()
}

// fill splices whatever src has ready into the empty pipe. It parks until src
// is readable, and returns 0 at EOF.
func (p *splicePipe) fill(src syscall.RawConn) (int, error) {
	var (
		n    int
		serr error
	)
	err := src.Read(func(fd uintptr) bool {
		n, serr = spliceRetry(int(fd), p.wfd, spliceChunk)
		return serr != syscall.EAGAIN
	})
	if err != nil {
		return 0, err
	}
	return n, serr
}

// drain splices n buffered pipe bytes into dst, parking while dst is full.
func (p *splicePipe) drain(dst syscall.RawConn, n int) (int, error) {
	drained := 0
	for drained < n {
		var (
			m    int
			serr error
		)
		err := dst.Write(func(fd uintptr) bool {
			m, serr = spliceRetry(p.rfd, int(fd), n-drained)
			return serr != syscall.EAGAIN
		})
		if err == nil {
			err = serr
		}
		if err != nil {
			return drained, err
		}
		if m == 0 {
			return drained, io.ErrShortWrite
		}
		drained += m
	}
	return drained, nil
}

// spliceRetry is one splice call, repeated only when a signal interrupts it.
func spliceRetry(rfd, wfd, n int) (int, error) {
	for {
		m, err := platformSplice(rfd, nil, wfd, nil, n, spliceFlags)
		if err != syscall.EINTR {
			return m, err
		}
	}
}
