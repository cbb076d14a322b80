package chunkio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// trickle yields s one byte per upstream read.
func trickle(s string) *BufferedSource {
	return NewBufferedSource(ReaderSource(iotest.OneByteReader(strings.NewReader(s)), NoTimeout))
}

// =============================================================================
// BufferedSource Tests
// =============================================================================

func TestBufferedSource_Numbers(t *testing.T) {
	src := trickle("12345 -67 ff;")

	v, err := src.ReadDecimalLong()
	require.NoError(t, err)
	assert.Equal(t, int64(12345), v)
	require.NoError(t, src.Skip(1))

	v, err = src.ReadDecimalLong()
	require.NoError(t, err)
	assert.Equal(t, int64(-67), v)
	require.NoError(t, src.Skip(1))

	h, err := src.ReadHexadecimalUnsignedLong()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xff), h)

	c, err := src.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(';'), c)

	exhausted, err := src.Exhausted()
	require.NoError(t, err)
	assert.True(t, exhausted)
}

func TestBufferedSource_DecimalAtEndOfStream(t *testing.T) {
	v, err := trickle("-9223372036854775808").ReadDecimalLong()
	require.NoError(t, err)
	assert.Equal(t, int64(-9223372036854775808), v)

	_, err = trickle("-").ReadDecimalLong()
	assert.ErrorIs(t, err, io.EOF)

	_, err = trickle("").ReadDecimalLong()
	assert.ErrorIs(t, err, io.EOF)

	_, err = trickle("x1").ReadDecimalLong()
	var mde *MalformedDataError
	require.ErrorAs(t, err, &mde)
	assert.Equal(t, "expected leading [0-9] or '-' character but was 0x78", mde.Msg)

	_, err = trickle("q").ReadHexadecimalUnsignedLong()
	require.ErrorAs(t, err, &mde)
}

func TestBufferedSource_FixedWidth(t *testing.T) {
	src := trickle(string([]byte{
		0x7f, 0xff,
		0x01, 0x00,
		0x00, 0x00, 0x01, 0x00,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
		0x01, 0x02,
	}))

	s, err := src.ReadShort()
	require.NoError(t, err)
	assert.Equal(t, int16(0x7fff), s)

	s, err = src.ReadShortLe()
	require.NoError(t, err)
	assert.Equal(t, int16(1), s)

	i, err := src.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int32(256), i)

	l, err := src.ReadLong()
	require.NoError(t, err)
	assert.Equal(t, int64(-2), l)

	_, err = src.ReadInt()
	var eos *EndOfStreamError
	require.ErrorAs(t, err, &eos)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(2), src.Buffer().Size(), "short read consumes nothing")
}

func TestBufferedSource_Require(t *testing.T) {
	src := trickle("abc")

	require.NoError(t, src.Require(3))
	assert.Equal(t, int64(3), src.Buffer().Size())

	err := src.Require(4)
	assert.ErrorIs(t, err, io.EOF)

	ok, err := src.Request(4)
	assert.False(t, ok)
	assert.NoError(t, err)

	s, err := src.ReadUTF8(3)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
}

func TestBufferedSource_Select(t *testing.T) {
	opts := NewOptions(EncodeUTF8("abc"), EncodeUTF8("abcdef"))

	src := trickle("abcdefg")
	i, err := src.Select(opts)
	require.NoError(t, err)
	assert.Equal(t, 1, i, "pulls until the longer option is decided")
	rest, _ := src.ReadUTF8All()
	assert.Equal(t, "g", rest)

	src = trickle("abcdx")
	i, err = src.Select(opts)
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	rest, _ = src.ReadUTF8All()
	assert.Equal(t, "dx", rest)

	src = trickle("abcd")
	i, err = src.Select(opts)
	require.NoError(t, err)
	assert.Equal(t, 0, i, "stream ends inside the longer option")

	src = trickle("ab")
	i, err = src.Select(opts)
	require.NoError(t, err)
	assert.Equal(t, -1, i)
	assert.Equal(t, int64(2), src.Buffer().Size(), "no match consumes nothing")
}

func TestBufferedSource_Search(t *testing.T) {
	src := trickle(strings.Repeat("hay", 100) + "needle" + "hay")

	i, err := src.IndexOf(EncodeUTF8("needle"))
	require.NoError(t, err)
	assert.Equal(t, int64(300), i)

	i, err = src.IndexOfFrom(EncodeUTF8("needle"), 301)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), i)

	src = trickle("key=value\n")
	i, err = src.IndexOfByte('\n')
	require.NoError(t, err)
	assert.Equal(t, int64(9), i)

	i, err = src.IndexOfByteRange('=', 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), i)

	i, err = src.IndexOfElement(EncodeUTF8("=:"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), i)

	ok, err := src.RangeEquals(4, EncodeUTF8("value"), 0, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = src.RangeEquals(8, EncodeUTF8("value"), 0, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBufferedSource_TextAndBytes(t *testing.T) {
	src := trickle("世界 done")

	r, size, err := src.ReadRune()
	require.NoError(t, err)
	assert.Equal(t, '世', r)
	assert.Equal(t, 3, size)

	bs, err := src.ReadByteStringN(3)
	require.NoError(t, err)
	assert.Equal(t, "界", bs.UTF8())

	p := make([]byte, 1)
	require.NoError(t, src.ReadFully(p))
	assert.Equal(t, " ", string(p))

	all, err := src.ReadByteArray()
	require.NoError(t, err)
	assert.Equal(t, "done", string(all))

	_, err = src.ReadByte()
	assert.Equal(t, io.EOF, err)
}

func TestBufferedSource_Read(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 5000)
	src := NewBufferedSource(ReaderSource(bytes.NewReader(payload), NoTimeout))

	got, err := io.ReadAll(src)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBufferedSource_SkipPastEnd(t *testing.T) {
	src := trickle("abc")
	err := src.Skip(5)
	assert.ErrorIs(t, err, io.EOF)
}

func TestBufferedSource_UpstreamError(t *testing.T) {
	errBoom := errors.New("boom")
	src := NewBufferedSource(ReaderSource(iotest.ErrReader(errBoom), NoTimeout))

	_, err := src.ReadByte()
	assert.ErrorIs(t, err, errBoom)

	err = src.Require(1)
	assert.ErrorIs(t, err, errBoom)
}

func TestBufferedSource_Close(t *testing.T) {
	src := trickle("abc")
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	_, err := src.ReadByte()
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, NoTimeout, src.Timeout())
}

func TestBufferedSource_ReadAll(t *testing.T) {
	payload := strings.Repeat("x", 3*SegmentSize+17)
	src := NewBufferedSource(ReaderSource(strings.NewReader(payload), NoTimeout))

	var out Buffer
	n, err := src.ReadAll(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, out.String())
}

// =============================================================================
// BufferedSink Tests
// =============================================================================

func TestBufferedSink_EmitsCompleteSegments(t *testing.T) {
	var out Buffer
	sink := NewBufferedSink(&out)

	_, err := sink.WriteString("small")
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.Size(), "partial tail is held back")

	_, err = sink.Write(make([]byte, SegmentSize))
	require.NoError(t, err)
	assert.Equal(t, int64(SegmentSize), out.Size())
	assert.Equal(t, int64(5), sink.Buffer().Size())

	require.NoError(t, sink.Flush())
	assert.Equal(t, int64(SegmentSize+5), out.Size())
	assert.True(t, sink.Buffer().Exhausted())
}

func TestBufferedSink_RoundTrip(t *testing.T) {
	var out Buffer
	sink := NewBufferedSink(&out)

	require.NoError(t, sink.WriteShort(-3))
	require.NoError(t, sink.WriteIntLe(0x01020304))
	require.NoError(t, sink.WriteLong(1<<40))
	require.NoError(t, sink.WriteDecimalLong(-42))
	require.NoError(t, sink.WriteByte(' '))
	require.NoError(t, sink.WriteHexadecimalUnsignedLong(0xbeef))
	require.NoError(t, sink.WriteUTF8(" héllo"))
	_, err := sink.WriteRune('!')
	require.NoError(t, err)
	require.NoError(t, sink.WriteByteString(EncodeUTF8("|")))
	require.NoError(t, sink.Close())

	src := NewBufferedSource(&out)
	s, _ := src.ReadShort()
	assert.Equal(t, int16(-3), s)
	i, _ := src.ReadIntLe()
	assert.Equal(t, int32(0x01020304), i)
	l, _ := src.ReadLong()
	assert.Equal(t, int64(1<<40), l)
	d, err := src.ReadDecimalLong()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), d)
	require.NoError(t, src.Skip(1))
	h, err := src.ReadHexadecimalUnsignedLong()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xbeef), h)
	rest, err := src.ReadUTF8All()
	require.NoError(t, err)
	assert.Equal(t, " héllo!|", rest)
}

func TestBufferedSink_WriteAfterClose(t *testing.T) {
	var out Buffer
	sink := NewBufferedSink(&out)
	sink.WriteString("bye")
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "second Close is a no-op")
	assert.Equal(t, "bye", out.String())

	_, err := sink.WriteString("again")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, sink.WriteByte('x'), ErrClosed)
	assert.ErrorIs(t, sink.Emit(), ErrClosed)
	_, err = sink.WriteAll(ReaderSource(strings.NewReader("x"), NoTimeout))
	assert.ErrorIs(t, err, ErrClosed)
}

// failingSink fails every write and close.
type failingSink struct {
	writeErr, closeErr error
	closed             bool
}

func (s *failingSink) WriteBuffer(*Buffer, int64) error { return s.writeErr }
func (s *failingSink) Flush() error                     { return nil }
func (s *failingSink) Close() error {
	s.closed = true
	return s.closeErr
}
func (s *failingSink) Timeout() Timeout { return NoTimeout }

func TestBufferedSink_CloseReportsAllErrors(t *testing.T) {
	errWrite := errors.New("write failed")
	errClose := errors.New("close failed")
	down := &failingSink{writeErr: errWrite, closeErr: errClose}

	sink := NewBufferedSink(down)
	sink.WriteString("pending")

	err := sink.Close()
	assert.True(t, down.closed, "downstream closed despite the failed write")
	assert.ErrorIs(t, err, errWrite)
	assert.ErrorIs(t, err, errClose)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestBufferedSink_WriteAllAndReadFrom(t *testing.T) {
	payload := strings.Repeat("stream ", 4000)

	var out Buffer
	sink := NewBufferedSink(&out)
	n, err := sink.WriteAll(ReaderSource(strings.NewReader(payload), NoTimeout))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	m, err := sink.ReadFrom(iotest.HalfReader(strings.NewReader(payload)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), m)

	require.NoError(t, sink.Flush())
	assert.Equal(t, payload+payload, out.String())
}

func TestBufferedSink_WriteBufferMovesSegments(t *testing.T) {
	var out Buffer
	sink := NewBufferedSink(&out)

	var src Buffer
	src.WriteString(strings.Repeat("m", 2*SegmentSize+1))
	require.NoError(t, sink.WriteBuffer(&src, src.Size()))
	assert.Equal(t, int64(2*SegmentSize), out.Size())
	assert.Equal(t, int64(1), sink.Buffer().Size())
	assert.True(t, src.Exhausted())
}
