package gzipio

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"go.uber.org/multierr"

	"github.com/xDarkicex/chunkio"
)

// Header flag bits (RFC 1952).
const (
	flagHCRC    = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
)

const gzipID = 0x1f8b

type section uint8

const (
	sectionHeader section = iota
	sectionBody
	sectionTrailer
	sectionDone
)

// GzipSource decompresses a gzip member. The header is parsed on the first
// read, honoring FEXTRA, FNAME, FCOMMENT and FHCRC. At the end the trailer's
// CRC-32 and ISIZE are verified and upstream must be exhausted.
type GzipSource struct {
	src      *chunkio.BufferedSource
	inflater *InflaterSource
	crc      hash.Hash32
	section  section
}

// NewGzipSource wraps src.
func NewGzipSource(src chunkio.Source) *GzipSource {
	bs, ok := src.(*chunkio.BufferedSource)
	if !ok {
		bs = chunkio.NewBufferedSource(src)
	}
	return &GzipSource{
		src:      bs,
		inflater: NewInflaterSource(bs),
		crc:      crc32.NewIEEE(),
	}
}

func (s *GzipSource) ReadBuffer(sink *chunkio.Buffer, n int64) (int64, error) {
	if n < 0 {
		panic(&chunkio.ArgumentError{Op: "GzipSource.ReadBuffer", Msg: "byteCount < 0"})
	}
	if n == 0 {
		return 0, nil
	}

	if s.section == sectionHeader {
		if err := s.consumeHeader(); err != nil {
			return 0, err
		}
		s.section = sectionBody
	}

	if s.section == sectionBody {
		offset := sink.Size()
		read, err := s.inflater.ReadBuffer(sink, n)
		if read > 0 {
			sink.WriteRangeTo(s.crc, offset, read)
		}
		if err != io.EOF {
			return read, err
		}
		s.section = sectionTrailer
	}

	if s.section == sectionTrailer {
		if err := s.consumeTrailer(); err != nil {
			return 0, err
		}
		s.section = sectionDone

		exhausted, err := s.src.Exhausted()
		if err != nil {
			return 0, err
		}
		if !exhausted {
			return 0, &chunkio.MalformedDataError{Op: "gzip", Msg: "gzip finished without exhausting source"}
		}
	}
	return 0, io.EOF
}

func (s *GzipSource) consumeHeader() error {
	if err := s.src.Require(10); err != nil {
		return err
	}
	buf := s.src.Buffer()
	flags := buf.GetByte(3)
	fhcrc := flags&flagHCRC != 0
	if fhcrc {
		buf.WriteRangeTo(s.crc, 0, 10)
	}

	id, _ := buf.ReadShort()
	if err := checkEqual("ID1ID2", gzipID, uint32(uint16(id))); err != nil {
		return err
	}
	if err := buf.Skip(8); err != nil {
		return err
	}

	if flags&flagExtra != 0 {
		if err := s.src.Require(2); err != nil {
			return err
		}
		if fhcrc {
			buf.WriteRangeTo(s.crc, 0, 2)
		}
		xlen, _ := buf.ReadShortLe()
		n := int64(uint16(xlen))
		if err := s.src.Require(n); err != nil {
			return err
		}
		if fhcrc {
			buf.WriteRangeTo(s.crc, 0, n)
		}
		if err := buf.Skip(n); err != nil {
			return err
		}
	}

	for _, field := range []struct {
		flag byte
		name string
	}{{flagName, "FNAME"}, {flagComment, "FCOMMENT"}} {
		if flags&field.flag == 0 {
			continue
		}
		if err := s.skipZeroTerminated(field.name, fhcrc); err != nil {
			return err
		}
	}

	if fhcrc {
		want, err := s.src.ReadShortLe()
		if err != nil {
			return err
		}
		if err := checkEqual("FHCRC", uint32(uint16(want)), s.crc.Sum32()&0xffff); err != nil {
			return err
		}
		s.crc.Reset()
	}
	return nil
}

func (s *GzipSource) skipZeroTerminated(field string, fhcrc bool) error {
	i, err := s.src.IndexOfByte(0)
	if err != nil {
		return err
	}
	if i == -1 {
		return &chunkio.EndOfStreamError{Op: "gzip " + field, Want: s.src.Buffer().Size() + 1, Have: s.src.Buffer().Size()}
	}
	if fhcrc {
		s.src.Buffer().WriteRangeTo(s.crc, 0, i+1)
	}
	return s.src.Skip(i + 1)
}

func (s *GzipSource) consumeTrailer() error {
	crc, err := s.src.ReadIntLe()
	if err != nil {
		return err
	}
	if err := checkEqual("CRC", uint32(crc), s.crc.Sum32()); err != nil {
		return err
	}
	size, err := s.src.ReadIntLe()
	if err != nil {
		return err
	}
	return checkEqual("ISIZE", uint32(size), uint32(s.inflater.BytesWritten()))
}

func checkEqual(name string, expected, actual uint32) error {
	if actual != expected {
		return &chunkio.MalformedDataError{
			Op:  "gzip",
			Msg: fmt.Sprintf("%s: actual 0x%08x != expected 0x%08x", name, actual, expected),
		}
	}
	return nil
}

// Close closes the inflater and upstream.
func (s *GzipSource) Close() error { return s.inflater.Close() }

// Timeout returns upstream's timeout.
func (s *GzipSource) Timeout() chunkio.Timeout { return s.src.Timeout() }

// GzipSink compresses into a gzip member: a fixed 10-byte header with no
// flags or modification time, the DEFLATE body, and a trailer of the CRC-32
// and length of the uncompressed data.
type GzipSink struct {
	sink     *chunkio.BufferedSink
	deflater *DeflaterSink
	crc      hash.Hash32
	closed   bool
}

// NewGzipSink wraps sink at DefaultCompression.
func NewGzipSink(sink chunkio.Sink) *GzipSink {
	gs, _ := NewGzipSinkLevel(sink, DefaultCompression)
	return gs
}

// NewGzipSinkLevel wraps sink at the given flate level.
func NewGzipSinkLevel(sink chunkio.Sink, level int) (*GzipSink, error) {
	bs := chunkio.NewBufferedSink(sink)
	d, err := NewDeflaterSink(bs, level)
	if err != nil {
		return nil, err
	}
	header := bs.Buffer()
	header.WriteShort(gzipID)
	header.WriteByte(8) // CM = deflate
	header.WriteByte(0) // FLG
	header.WriteInt(0)  // MTIME
	header.WriteByte(0) // XFL
	header.WriteByte(0) // OS
	return &GzipSink{sink: bs, deflater: d, crc: crc32.NewIEEE()}, nil
}

func (s *GzipSink) WriteBuffer(src *chunkio.Buffer, n int64) error {
	if s.closed {
		return chunkio.ErrClosed
	}
	if n < 0 || n > src.Size() {
		panic(&chunkio.BoundsError{Op: "GzipSink.WriteBuffer", Size: src.Size(), Count: n})
	}
	if n == 0 {
		return nil
	}
	src.WriteRangeTo(s.crc, 0, n)
	return s.deflater.WriteBuffer(src, n)
}

func (s *GzipSink) Flush() error { return s.deflater.Flush() }

// Close finishes the body, writes the trailer and closes downstream. The
// downstream sink is closed even when finishing fails.
func (s *GzipSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.deflater.finish()
	if err == nil {
		err = multierr.Combine(
			s.sink.WriteIntLe(int32(s.crc.Sum32())),
			s.sink.WriteIntLe(int32(uint32(s.deflater.BytesRead()))),
		)
	}
	return multierr.Append(err, s.sink.Close())
}

// Timeout returns downstream's timeout.
func (s *GzipSink) Timeout() chunkio.Timeout { return s.sink.Timeout() }

var (
	_ chunkio.Source = (*GzipSource)(nil)
	_ chunkio.Sink   = (*GzipSink)(nil)
	_ chunkio.Source = (*InflaterSource)(nil)
	_ chunkio.Sink   = (*DeflaterSink)(nil)
)
