package chunkio

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"go.uber.org/multierr"
)

// ReaderSource adapts r to a Source. Each ReadBuffer reads directly into a
// pooled segment of the destination. Before every read the deadline of t is
// checked. When r has SetReadDeadline (net.Conn, *os.File) the bound of t is
// also armed on r, so a blocked read fails with a *TimeoutError.
//
// Close closes r when it implements io.Closer.
func ReaderSource(r io.Reader, t Timeout) Source {
	return &readerSource{r: r, timeout: t}
}

type readerSource struct {
	r       io.Reader
	timeout Timeout
}

func (s *readerSource) ReadBuffer(sink *Buffer, n int64) (int64, error) {
	if n < 0 {
		panic(&ArgumentError{Op: "ReadBuffer", Msg: "byteCount < 0"})
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.timeout.Reached(time.Now()); err != nil {
		return 0, err
	}
	armReadDeadline(s.r, s.timeout, time.Now())
	seg := sink.WritableSegment(1)
	free := seg.Free()
	free = free[:min(int64(len(free)), n)]
	err := io.ErrNoProgress
	for i := 0; i < maxEmptyReads; i++ {
		var nr int
		nr, err = s.r.Read(free)
		if nr > 0 {
			sink.Commit(nr)
			// EOF is reported by the next call.
			return int64(nr), nil
		}
		if err != nil {
			break
		}
		err = io.ErrNoProgress
	}
	sink.Commit(0)
	return 0, asTimeoutError(err)
}

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

func (s *readerSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *readerSource) Timeout() Timeout { return s.timeout }

// WriterSink adapts w to a Sink. Segments are written without copying; when
// w is a net.Conn or *os.File and the whole buffer is written, they go out in
// one writev() call. A w with SetWriteDeadline gets the bound of t armed
// before each write.
//
// Flush calls w.Flush when w has one. Close closes w when it implements io.Closer.
func WriterSink(w io.Writer, t Timeout) Sink {
	return &writerSink{w: w, timeout: t}
}

type writerSink struct {
	w       io.Writer
	timeout Timeout
}

func (s *writerSink) WriteBuffer(src *Buffer, n int64) error {
	checkOffsetAndCount("WriteBuffer", src.Size(), 0, n)
	if err := s.timeout.Reached(time.Now()); err != nil {
		return err
	}
	armWriteDeadline(s.w, s.timeout, time.Now())
	if n == src.Size() && useWritev(s.w) {
		_, err := src.WriteTo(s.w)
		return asTimeoutError(err)
	}
	for n > 0 {
		if err := s.timeout.Reached(time.Now()); err != nil {
			return err
		}
		head := src.Head()
		chunk := head.Bytes()[:min(int64(head.Len()), n)]
		written, err := s.w.Write(chunk)
		src.list.remove(int64(written))
		n -= int64(written)
		if err != nil {
			return asTimeoutError(err)
		}
		if written < len(chunk) {
			return io.ErrShortWrite
		}
	}
	return nil
}

func (s *writerSink) Flush() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (s *writerSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *writerSink) Timeout() Timeout { return s.timeout }

// armReadDeadline applies the bound of t for an operation starting at now to
// r's read deadline. Disabled timeouts leave r untouched.
func armReadDeadline(r io.Reader, t Timeout, now time.Time) {
	d, ok := r.(interface{ SetReadDeadline(time.Time) error })
	if !ok {
		return
	}
	if at, enabled := t.FireAt(now); enabled {
		// Regular files report os.ErrNoDeadline; their reads never park.
		_ = d.SetReadDeadline(at)
	}
}

func armWriteDeadline(w io.Writer, t Timeout, now time.Time) {
	d, ok := w.(interface{ SetWriteDeadline(time.Time) error })
	if !ok {
		return
	}
	if at, enabled := t.FireAt(now); enabled {
		_ = d.SetWriteDeadline(at)
	}
}

// asTimeoutError reports an expired I/O deadline as a *TimeoutError.
func asTimeoutError(err error) error {
	var te *TimeoutError
	if err == nil || errors.As(err, &te) || !errors.Is(err, os.ErrDeadlineExceeded) {
		return err
	}
	return &TimeoutError{Cause: err}
}

// ConnSource reads from conn under an AsyncTimeout on w. When a read outlives
// policy the watchdog closes conn, which unblocks the read; the read then
// fails with a *TimeoutError.
func ConnSource(conn net.Conn, w *Watchdog, policy Timeout) Source {
	a := w.NewAsyncTimeout(policy, OnFired(closeOnFire(conn)))
	return a.Source(ReaderSource(conn, NoTimeout))
}

// ConnSink writes to conn under an AsyncTimeout on w, closing conn when a
// write, flush or close outlives policy.
func ConnSink(conn net.Conn, w *Watchdog, policy Timeout) Sink {
	a := w.NewAsyncTimeout(policy, OnFired(closeOnFire(conn)))
	return a.Sink(WriterSink(conn, NoTimeout))
}

func closeOnFire(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// OpenFileSource opens path for reading.
func OpenFileSource(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return ReaderSource(f, NoTimeout), nil
}

// CreateFileSink creates or truncates path for writing.
func CreateFileSink(path string) (Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fileSink{writerSink{w: f}}, nil
}

// AppendingFileSink opens path for appending, creating it if needed.
func AppendingFileSink(path string) (Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileSink{writerSink{w: f}}, nil
}

// fileSink flushes to stable storage on Flush.
type fileSink struct {
	writerSink
}

func (s *fileSink) Flush() error {
	return s.w.(*os.File).Sync()
}

// Copy moves everything from src to dst and returns the byte count. dst is
// neither flushed nor closed.
//
// When both ends are plain adapters over *net.UnixConn and neither carries a
// per-operation duration, the transfer is done by SpliceConn without entering
// user space; absolute deadlines are armed on the connections first. Otherwise
// bytes move one segment at a time through a pooled Buffer.
func Copy(dst Sink, src Source) (int64, error) {
	if dst == nil || src == nil {
		return 0, io.ErrUnexpectedEOF
	}

	if d, s := unixConnOf(dst), unixConnOf(src); d != nil && s != nil &&
		dst.Timeout().Duration() == 0 && src.Timeout().Duration() == 0 {
		now := time.Now()
		if err := src.Timeout().Reached(now); err != nil {
			return 0, err
		}
		if err := dst.Timeout().Reached(now); err != nil {
			return 0, err
		}
		armReadDeadline(s, src.Timeout(), now)
		armWriteDeadline(d, dst.Timeout(), now)
		n, err := SpliceConn(d, s)
		if n != 0 || (err != syscall.ENOTSUP && err != syscall.EINVAL) {
			return n, asTimeoutError(err)
		}
	}

	buf := New()
	defer buf.Release()

	var total int64
	for {
		n, err := src.ReadBuffer(buf, SegmentSize)
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if err := dst.WriteBuffer(buf, n); err != nil {
			return total, err
		}
		total += n
	}
}

// CopyAndClose is Copy followed by closing both ends. All errors are reported.
func CopyAndClose(dst Sink, src Source) (n int64, err error) {
	defer func() {
		err = multierr.Combine(err, dst.Flush(), dst.Close(), src.Close())
	}()
	return Copy(dst, src)
}

func unixConnOf(v any) *net.UnixConn {
	switch a := v.(type) {
	case *readerSource:
		c, _ := a.r.(*net.UnixConn)
		return c
	case *writerSink:
		c, _ := a.w.(*net.UnixConn)
		return c
	}
	return nil
}
