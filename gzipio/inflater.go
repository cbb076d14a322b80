// Package gzipio adapts raw DEFLATE and gzip streams to chunkio Sources and
// Sinks. Compression runs on github.com/klauspost/compress/flate; checksums
// are fed from buffer segments without copying.
package gzipio

import (
	"errors"
	"io"

	"github.com/klauspost/compress/flate"
	"go.uber.org/multierr"

	"github.com/xDarkicex/chunkio"
)

// InflaterSource decompresses a raw DEFLATE stream read from upstream.
//
// The decompressor pulls compressed bytes one at a time through the
// upstream BufferedSource, so nothing past the end of the DEFLATE stream is
// consumed. GzipSource relies on this to read its trailer.
type InflaterSource struct {
	src     *chunkio.BufferedSource
	fr      io.ReadCloser
	written int64
	eof     bool
	closed  bool
}

// NewInflaterSource wraps src. A *chunkio.BufferedSource is used as is.
func NewInflaterSource(src chunkio.Source) *InflaterSource {
	bs, ok := src.(*chunkio.BufferedSource)
	if !ok {
		bs = chunkio.NewBufferedSource(src)
	}
	return &InflaterSource{src: bs, fr: flate.NewReader(bs)}
}

// ReadBuffer inflates up to n bytes into one segment of sink.
func (s *InflaterSource) ReadBuffer(sink *chunkio.Buffer, n int64) (int64, error) {
	if n < 0 {
		panic(&chunkio.ArgumentError{Op: "InflaterSource.ReadBuffer", Msg: "byteCount < 0"})
	}
	if s.closed {
		return 0, chunkio.ErrClosed
	}
	if n == 0 {
		return 0, nil
	}
	if s.eof {
		return 0, io.EOF
	}

	seg := sink.WritableSegment(1)
	free := seg.Free()
	free = free[:min(int64(len(free)), n)]
	for {
		nr, err := s.fr.Read(free)
		if nr > 0 {
			sink.Commit(nr)
			s.written += int64(nr)
		}
		switch {
		case err == io.EOF:
			s.eof = true
		case err != nil:
			if nr == 0 {
				sink.Commit(0)
			}
			return int64(nr), inflateError(err)
		}
		if nr > 0 {
			return int64(nr), nil
		}
		if s.eof {
			sink.Commit(0)
			return 0, io.EOF
		}
	}
}

func inflateError(err error) error {
	var corrupt flate.CorruptInputError
	switch {
	case errors.As(err, &corrupt):
		return &chunkio.MalformedDataError{Op: "inflate", Msg: "corrupt deflate stream", Err: err}
	case errors.Is(err, io.ErrUnexpectedEOF):
		return &chunkio.EndOfStreamError{Op: "inflate"}
	}
	return err
}

// BytesWritten returns the number of inflated bytes produced so far.
func (s *InflaterSource) BytesWritten() int64 { return s.written }

// Close releases the decompressor and closes upstream.
func (s *InflaterSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return multierr.Append(s.fr.Close(), s.src.Close())
}

// Timeout returns upstream's timeout.
func (s *InflaterSource) Timeout() chunkio.Timeout { return s.src.Timeout() }
