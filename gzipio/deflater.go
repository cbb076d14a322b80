package gzipio

import (
	"github.com/klauspost/compress/flate"
	"go.uber.org/multierr"

	"github.com/xDarkicex/chunkio"
)

// Compression levels, re-exported from flate.
const (
	DefaultCompression = flate.DefaultCompression
	BestSpeed          = flate.BestSpeed
	BestCompression    = flate.BestCompression
)

// DeflaterSink compresses everything written to it as a raw DEFLATE stream.
// Compressed output collects in a BufferedSink and goes downstream a segment
// at a time.
type DeflaterSink struct {
	sink   *chunkio.BufferedSink
	fw     *flate.Writer
	read   int64
	closed bool
}

// NewDeflaterSink wraps sink at the given flate level.
func NewDeflaterSink(sink chunkio.Sink, level int) (*DeflaterSink, error) {
	bs, ok := sink.(*chunkio.BufferedSink)
	if !ok {
		bs = chunkio.NewBufferedSink(sink)
	}
	fw, err := flate.NewWriter(bs, level)
	if err != nil {
		return nil, err
	}
	return &DeflaterSink{sink: bs, fw: fw}, nil
}

// WriteBuffer compresses n bytes from the head of src, one segment window at a time.
func (s *DeflaterSink) WriteBuffer(src *chunkio.Buffer, n int64) error {
	if s.closed {
		return chunkio.ErrClosed
	}
	if n < 0 || n > src.Size() {
		panic(&chunkio.BoundsError{Op: "DeflaterSink.WriteBuffer", Size: src.Size(), Count: n})
	}
	for n > 0 {
		head := src.Head()
		window := head.Bytes()[:min(int64(head.Len()), n)]
		w, err := s.fw.Write(window)
		s.read += int64(w)
		if skipErr := src.Skip(int64(w)); skipErr != nil {
			return skipErr
		}
		if err != nil {
			return err
		}
		n -= int64(w)
	}
	return nil
}

// Flush sync-flushes the compressor and then downstream. Everything written
// so far becomes decodable by the reader.
func (s *DeflaterSink) Flush() error {
	if s.closed {
		return chunkio.ErrClosed
	}
	if err := s.fw.Flush(); err != nil {
		return err
	}
	return s.sink.Flush()
}

// finish writes the final block without closing downstream.
func (s *DeflaterSink) finish() error {
	return s.fw.Close()
}

// BytesRead returns the number of uncompressed bytes consumed so far.
func (s *DeflaterSink) BytesRead() int64 { return s.read }

// Close finishes the stream and closes downstream, even if finishing failed.
func (s *DeflaterSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return multierr.Append(s.finish(), s.sink.Close())
}

// Timeout returns downstream's timeout.
func (s *DeflaterSink) Timeout() chunkio.Timeout { return s.sink.Timeout() }
