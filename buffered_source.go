package chunkio

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
)

// BufferedSource reads ahead from an upstream Source into a Buffer and offers
// every Buffer read operation on top of it, pulling more data as needed.
//
// Reads that fail for lack of data consume nothing from the buffer.
type BufferedSource struct {
	buf    Buffer
	src    Source
	closed bool
}

// NewBufferedSource wraps src.
func NewBufferedSource(src Source) *BufferedSource {
	return &BufferedSource{src: src}
}

// Buffer returns the read-ahead buffer. Bytes read from it are consumed from
// the stream.
func (s *BufferedSource) Buffer() *Buffer { return &s.buf }

// pull reads up to one segment from upstream. It returns false at the end of
// the stream.
func (s *BufferedSource) pull() (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	_, err := s.src.ReadBuffer(&s.buf, SegmentSize)
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BufferedSource) pullAll() error {
	for {
		more, err := s.pull()
		if err != nil || !more {
			return err
		}
	}
}

// Request pulls until at least n bytes are buffered. It returns false when the
// stream ends first.
func (s *BufferedSource) Request(n int64) (bool, error) {
	if n < 0 {
		panic(&ArgumentError{Op: "Request", Msg: "byteCount < 0"})
	}
	for s.buf.Size() < n {
		more, err := s.pull()
		if err != nil || !more {
			return false, err
		}
	}
	return true, nil
}

// Require is Request that reports a short stream as an EndOfStreamError.
func (s *BufferedSource) Require(n int64) error {
	ok, err := s.Request(n)
	if err != nil {
		return err
	}
	if !ok {
		return &EndOfStreamError{Op: "Require", Want: n, Have: s.buf.Size()}
	}
	return nil
}

// Exhausted reports whether the buffer is empty and upstream has ended.
func (s *BufferedSource) Exhausted() (bool, error) {
	ok, err := s.Request(1)
	return !ok && err == nil, err
}

// ReadBuffer implements Source.
func (s *BufferedSource) ReadBuffer(sink *Buffer, n int64) (int64, error) {
	if n < 0 {
		panic(&ArgumentError{Op: "ReadBuffer", Msg: "byteCount < 0"})
	}
	if s.buf.Exhausted() {
		more, err := s.pull()
		if err != nil {
			return 0, err
		}
		if !more {
			return 0, io.EOF
		}
	}
	return s.buf.ReadBuffer(sink, min(n, s.buf.Size()))
}

// Read implements io.Reader.
func (s *BufferedSource) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.buf.Exhausted() {
		more, err := s.pull()
		if err != nil {
			return 0, err
		}
		if !more {
			return 0, io.EOF
		}
	}
	return s.buf.Read(p)
}

// ReadByte implements io.ByteReader. It returns io.EOF itself at the end of
// the stream so flate and other byte-oriented decoders see the usual sentinel.
func (s *BufferedSource) ReadByte() (byte, error) {
	if ok, err := s.Request(1); !ok {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}
	return s.buf.ReadByte()
}

// ReadRune implements io.RuneReader.
func (s *BufferedSource) ReadRune() (rune, int, error) {
	if _, err := s.Request(utf8.UTFMax); err != nil {
		return 0, 0, err
	}
	return s.buf.ReadRune()
}

func (s *BufferedSource) ReadShort() (int16, error) {
	if err := s.Require(2); err != nil {
		return 0, err
	}
	return s.buf.ReadShort()
}

func (s *BufferedSource) ReadShortLe() (int16, error) {
	if err := s.Require(2); err != nil {
		return 0, err
	}
	return s.buf.ReadShortLe()
}

func (s *BufferedSource) ReadInt() (int32, error) {
	if err := s.Require(4); err != nil {
		return 0, err
	}
	return s.buf.ReadInt()
}

func (s *BufferedSource) ReadIntLe() (int32, error) {
	if err := s.Require(4); err != nil {
		return 0, err
	}
	return s.buf.ReadIntLe()
}

func (s *BufferedSource) ReadLong() (int64, error) {
	if err := s.Require(8); err != nil {
		return 0, err
	}
	return s.buf.ReadLong()
}

func (s *BufferedSource) ReadLongLe() (int64, error) {
	if err := s.Require(8); err != nil {
		return 0, err
	}
	return s.buf.ReadLongLe()
}

// ReadDecimalLong buffers the run of digits, then parses it like
// Buffer.ReadDecimalLong.
func (s *BufferedSource) ReadDecimalLong() (int64, error) {
	if err := s.Require(1); err != nil {
		return 0, err
	}
	for pos := int64(0); ; pos++ {
		ok, err := s.Request(pos + 1)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		c := s.buf.GetByte(pos)
		if (c < '0' || c > '9') && (pos != 0 || c != '-') {
			if pos == 0 {
				return 0, &MalformedDataError{Op: "ReadDecimalLong", Msg: fmt.Sprintf(
					"expected leading [0-9] or '-' character but was 0x%02x", c)}
			}
			break
		}
	}
	return s.buf.ReadDecimalLong()
}

// ReadHexadecimalUnsignedLong buffers the run of hex digits, then parses it
// like Buffer.ReadHexadecimalUnsignedLong.
func (s *BufferedSource) ReadHexadecimalUnsignedLong() (uint64, error) {
	if err := s.Require(1); err != nil {
		return 0, err
	}
	for pos := int64(0); ; pos++ {
		ok, err := s.Request(pos + 1)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		c := s.buf.GetByte(pos)
		if _, isHex := hexValue(c); !isHex {
			if pos == 0 {
				return 0, &MalformedDataError{Op: "ReadHexadecimalUnsignedLong", Msg: fmt.Sprintf(
					"expected leading [0-9a-fA-F] character but was 0x%02x", c)}
			}
			break
		}
	}
	return s.buf.ReadHexadecimalUnsignedLong()
}

func (s *BufferedSource) ReadUTF8(n int64) (string, error) {
	if err := s.Require(n); err != nil {
		return "", err
	}
	return s.buf.ReadUTF8(n)
}

// ReadUTF8All reads to the end of the stream.
func (s *BufferedSource) ReadUTF8All() (string, error) {
	if err := s.pullAll(); err != nil {
		return "", err
	}
	return s.buf.ReadUTF8All(), nil
}

func (s *BufferedSource) ReadStringEncoded(n int64, enc encoding.Encoding) (string, error) {
	if err := s.Require(n); err != nil {
		return "", err
	}
	return s.buf.ReadStringEncoded(n, enc)
}

// ReadByteArray reads to the end of the stream.
func (s *BufferedSource) ReadByteArray() ([]byte, error) {
	if err := s.pullAll(); err != nil {
		return nil, err
	}
	return s.buf.ReadByteArray(), nil
}

func (s *BufferedSource) ReadByteArrayN(n int64) ([]byte, error) {
	if err := s.Require(n); err != nil {
		return nil, err
	}
	return s.buf.ReadByteArrayN(n)
}

// ReadFully fills p or returns an EndOfStreamError without consuming anything.
func (s *BufferedSource) ReadFully(p []byte) error {
	if err := s.Require(int64(len(p))); err != nil {
		return err
	}
	return s.buf.ReadFully(p)
}

// ReadByteString reads to the end of the stream.
func (s *BufferedSource) ReadByteString() (ByteString, error) {
	if err := s.pullAll(); err != nil {
		return ByteString{}, err
	}
	return s.buf.ReadByteString(), nil
}

func (s *BufferedSource) ReadByteStringN(n int64) (ByteString, error) {
	if err := s.Require(n); err != nil {
		return ByteString{}, err
	}
	return s.buf.ReadByteStringN(n)
}

// Skip discards n bytes, pulling as needed. Bytes already skipped stay skipped
// when the stream ends early.
func (s *BufferedSource) Skip(n int64) error {
	if n < 0 {
		panic(&ArgumentError{Op: "Skip", Msg: "byteCount < 0"})
	}
	for n > 0 {
		if s.buf.Exhausted() {
			more, err := s.pull()
			if err != nil {
				return err
			}
			if !more {
				return &EndOfStreamError{Op: "Skip", Want: n}
			}
		}
		m := min(n, s.buf.Size())
		s.buf.list.remove(m)
		n -= m
	}
	return nil
}

// ReadAll drains the stream into sink and returns the byte count.
func (s *BufferedSource) ReadAll(sink Sink) (int64, error) {
	var total int64
	for {
		more, err := s.pull()
		if err != nil {
			return total, err
		}
		if n := s.buf.completeSegmentByteCount(); n > 0 {
			if err := sink.WriteBuffer(&s.buf, n); err != nil {
				return total, err
			}
			total += n
		}
		if !more {
			break
		}
	}
	if n := s.buf.Size(); n > 0 {
		if err := sink.WriteBuffer(&s.buf, n); err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// =============================================================================
// Search
// =============================================================================

func (s *BufferedSource) IndexOfByte(c byte) (int64, error) {
	return s.IndexOfByteRange(c, 0, maxIndex)
}

func (s *BufferedSource) IndexOfByteFrom(c byte, from int64) (int64, error) {
	return s.IndexOfByteRange(c, from, maxIndex)
}

// IndexOfByteRange searches [from, to), pulling until c is found, to is
// buffered, or the stream ends.
func (s *BufferedSource) IndexOfByteRange(c byte, from, to int64) (int64, error) {
	for {
		if i := s.buf.IndexOfByteRange(c, from, to); i >= 0 {
			return i, nil
		}
		last := s.buf.Size()
		if last >= to {
			return -1, nil
		}
		more, err := s.pull()
		if err != nil || !more {
			return -1, err
		}
		from = max(from, last)
	}
}

func (s *BufferedSource) IndexOf(pattern ByteString) (int64, error) {
	return s.IndexOfFrom(pattern, 0)
}

// IndexOfFrom searches from the given offset, pulling until pattern is found
// or the stream ends.
func (s *BufferedSource) IndexOfFrom(pattern ByteString, from int64) (int64, error) {
	for {
		if i := s.buf.IndexOfFrom(pattern, from); i >= 0 {
			return i, nil
		}
		last := s.buf.Size()
		more, err := s.pull()
		if err != nil || !more {
			return -1, err
		}
		// A match may start in the tail of what was already searched.
		from = max(from, last-int64(pattern.Len())+1)
	}
}

func (s *BufferedSource) IndexOfElement(set ByteString) (int64, error) {
	return s.IndexOfElementFrom(set, 0)
}

func (s *BufferedSource) IndexOfElementFrom(set ByteString, from int64) (int64, error) {
	for {
		if i := s.buf.IndexOfElementFrom(set, from); i >= 0 {
			return i, nil
		}
		last := s.buf.Size()
		more, err := s.pull()
		if err != nil || !more {
			return -1, err
		}
		from = max(from, last)
	}
}

// RangeEquals pulls enough bytes to compare, then compares like
// Buffer.RangeEquals. A stream too short to compare yields false.
func (s *BufferedSource) RangeEquals(offset int64, pattern ByteString, patternOffset, n int) (bool, error) {
	if offset < 0 || n < 0 {
		return false, nil
	}
	if ok, err := s.Request(offset + int64(n)); !ok {
		return false, err
	}
	return s.buf.RangeEquals(offset, pattern, patternOffset, n), nil
}

// Select consumes the longest option that prefixes the stream and returns its
// index, or -1 when none does. It pulls while a longer option could still match.
func (s *BufferedSource) Select(opts *Options) (int, error) {
	for {
		i, truncated := s.buf.selectPrefix(opts)
		if !truncated {
			return s.consumeOption(opts, i), nil
		}
		more, err := s.pull()
		if err != nil {
			return -1, err
		}
		if !more {
			return s.consumeOption(opts, i), nil
		}
	}
}

func (s *BufferedSource) consumeOption(opts *Options, i int) int {
	if i >= 0 {
		s.buf.list.remove(int64(opts.items[i].Len()))
	}
	return i
}

// Close discards buffered bytes and closes upstream.
func (s *BufferedSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf.Reset()
	return s.src.Close()
}

// Timeout returns upstream's timeout.
func (s *BufferedSource) Timeout() Timeout { return s.src.Timeout() }

var _ interface {
	Source
	io.Reader
	io.ByteReader
	io.RuneReader
} = (*BufferedSource)(nil)
