package chunkio

import (
	"errors"
	"io"

	"go.uber.org/multierr"
	"golang.org/x/text/encoding"
)

// BufferedSink collects writes in a Buffer and hands complete segments to a
// downstream Sink. Partial tails are held until Emit, Flush or Close.
type BufferedSink struct {
	buf    Buffer
	sink   Sink
	closed bool
}

// NewBufferedSink wraps sink.
func NewBufferedSink(sink Sink) *BufferedSink {
	return &BufferedSink{sink: sink}
}

// Buffer returns the pending bytes. Bytes written to it directly are sent on
// the next emit.
func (s *BufferedSink) Buffer() *Buffer { return &s.buf }

// EmitCompleteSegments sends every full segment downstream, keeping the
// partially filled tail.
func (s *BufferedSink) EmitCompleteSegments() error {
	if s.closed {
		return ErrClosed
	}
	if n := s.buf.completeSegmentByteCount(); n > 0 {
		return s.sink.WriteBuffer(&s.buf, n)
	}
	return nil
}

// Emit sends everything buffered downstream without flushing it.
func (s *BufferedSink) Emit() error {
	if s.closed {
		return ErrClosed
	}
	if n := s.buf.Size(); n > 0 {
		return s.sink.WriteBuffer(&s.buf, n)
	}
	return nil
}

// WriteBuffer implements Sink.
func (s *BufferedSink) WriteBuffer(src *Buffer, n int64) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.buf.WriteBuffer(src, n); err != nil {
		return err
	}
	return s.EmitCompleteSegments()
}

// Write implements io.Writer.
func (s *BufferedSink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	s.buf.Write(p)
	return len(p), s.EmitCompleteSegments()
}

// WriteString implements io.StringWriter.
func (s *BufferedSink) WriteString(str string) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	s.buf.WriteString(str)
	return len(str), s.EmitCompleteSegments()
}

// WriteByte implements io.ByteWriter.
func (s *BufferedSink) WriteByte(c byte) error {
	return s.then(func() { s.buf.WriteByte(c) })
}

func (s *BufferedSink) WriteRune(r rune) (int, error) {
	var n int
	err := s.then(func() { n, _ = s.buf.WriteRune(r) })
	return n, err
}

func (s *BufferedSink) WriteUTF8(str string) error {
	return s.then(func() { s.buf.WriteUTF8(str) })
}

func (s *BufferedSink) WriteStringEncoded(str string, enc encoding.Encoding) error {
	if s.closed {
		return ErrClosed
	}
	if err := s.buf.WriteStringEncoded(str, enc); err != nil {
		return err
	}
	return s.EmitCompleteSegments()
}

func (s *BufferedSink) WriteByteString(bs ByteString) error {
	return s.then(func() { s.buf.WriteByteString(bs) })
}

func (s *BufferedSink) WriteShort(v int16) error {
	return s.then(func() { s.buf.WriteShort(v) })
}

func (s *BufferedSink) WriteShortLe(v int16) error {
	return s.then(func() { s.buf.WriteShortLe(v) })
}

func (s *BufferedSink) WriteInt(v int32) error {
	return s.then(func() { s.buf.WriteInt(v) })
}

func (s *BufferedSink) WriteIntLe(v int32) error {
	return s.then(func() { s.buf.WriteIntLe(v) })
}

func (s *BufferedSink) WriteLong(v int64) error {
	return s.then(func() { s.buf.WriteLong(v) })
}

func (s *BufferedSink) WriteLongLe(v int64) error {
	return s.then(func() { s.buf.WriteLongLe(v) })
}

func (s *BufferedSink) WriteDecimalLong(v int64) error {
	return s.then(func() { s.buf.WriteDecimalLong(v) })
}

func (s *BufferedSink) WriteHexadecimalUnsignedLong(v uint64) error {
	return s.then(func() { s.buf.WriteHexadecimalUnsignedLong(v) })
}

// then runs an infallible buffer write and emits complete segments.
func (s *BufferedSink) then(write func()) error {
	if s.closed {
		return ErrClosed
	}
	write()
	return s.EmitCompleteSegments()
}

// WriteAll drains src into this sink and returns the byte count.
func (s *BufferedSink) WriteAll(src Source) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	var total int64
	for {
		n, err := src.ReadBuffer(&s.buf, SegmentSize)
		total += n
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if err := s.EmitCompleteSegments(); err != nil {
			return total, err
		}
	}
}

// ReadFrom implements io.ReaderFrom.
func (s *BufferedSink) ReadFrom(r io.Reader) (int64, error) {
	return s.WriteAll(ReaderSource(r, NoTimeout))
}

// Flush emits everything buffered and flushes downstream.
func (s *BufferedSink) Flush() error {
	if err := s.Emit(); err != nil {
		return err
	}
	return s.sink.Flush()
}

// Close emits what is buffered and closes downstream. Downstream is closed
// even when the final write fails; both errors are reported.
func (s *BufferedSink) Close() error {
	if s.closed {
		return nil
	}
	var err error
	if n := s.buf.Size(); n > 0 {
		err = s.sink.WriteBuffer(&s.buf, n)
	}
	s.closed = true
	s.buf.Reset()
	return multierr.Append(err, s.sink.Close())
}

// Timeout returns downstream's timeout.
func (s *BufferedSink) Timeout() Timeout { return s.sink.Timeout() }

var _ interface {
	Sink
	io.Writer
	io.ByteWriter
	io.StringWriter
	io.ReaderFrom
} = (*BufferedSink)(nil)
