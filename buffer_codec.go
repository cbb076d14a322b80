package chunkio

import (
	"fmt"
	"io"
	"math"
	"math/bits"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
)

const hexDigits = "0123456789abcdef"

// minInt64Decimal is written literally: the magnitude of math.MinInt64 does
// not fit in an int64.
const minInt64Decimal = "-9223372036854775808"

// =============================================================================
// Fixed-width integers
// =============================================================================

// writeUint appends the low n bytes of v in big-endian order.
func (b *Buffer) writeUint(v uint64, n int) {
	b.checkReleased()
	t := b.list.writableTail(n)
	data := t.c.data[t.rear : t.rear+n]
	for i := n - 1; i >= 0; i-- {
		data[i] = byte(v)
		v >>= 8
	}
	t.rear += n
	b.list.size += int64(n)
}

// readUint consumes n bytes as a big-endian unsigned value. Nothing is
// consumed when fewer than n bytes are available.
func (b *Buffer) readUint(op string, n int) (uint64, error) {
	if !b.list.has(int64(n)) {
		return 0, &EndOfStreamError{Op: op, Want: int64(n), Have: b.list.size}
	}
	var v uint64
	if h := b.list.head; h.Len() >= n {
		for _, c := range h.c.data[h.front : h.front+n] {
			v = v<<8 | uint64(c)
		}
		b.list.remove(int64(n))
		return v, nil
	}
	for i := 0; i < n; i++ {
		c, _ := b.list.readByte()
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// WriteShort appends v as two big-endian bytes.
func (b *Buffer) WriteShort(v int16) { b.writeUint(uint64(uint16(v)), 2) }

// WriteShortLe appends v as two little-endian bytes.
func (b *Buffer) WriteShortLe(v int16) { b.writeUint(uint64(bits.ReverseBytes16(uint16(v))), 2) }

// WriteInt appends v as four big-endian bytes.
func (b *Buffer) WriteInt(v int32) { b.writeUint(uint64(uint32(v)), 4) }

// WriteIntLe appends v as four little-endian bytes.
func (b *Buffer) WriteIntLe(v int32) { b.writeUint(uint64(bits.ReverseBytes32(uint32(v))), 4) }

// WriteLong appends v as eight big-endian bytes.
func (b *Buffer) WriteLong(v int64) { b.writeUint(uint64(v), 8) }

// WriteLongLe appends v as eight little-endian bytes.
func (b *Buffer) WriteLongLe(v int64) { b.writeUint(bits.ReverseBytes64(uint64(v)), 8) }

// ReadShort consumes two bytes as a big-endian int16.
func (b *Buffer) ReadShort() (int16, error) {
	v, err := b.readUint("ReadShort", 2)
	return int16(v), err
}

// ReadShortLe consumes two bytes as a little-endian int16.
func (b *Buffer) ReadShortLe() (int16, error) {
	v, err := b.readUint("ReadShortLe", 2)
	return int16(bits.ReverseBytes16(uint16(v))), err
}

// ReadInt consumes four bytes as a big-endian int32.
func (b *Buffer) ReadInt() (int32, error) {
	v, err := b.readUint("ReadInt", 4)
	return int32(v), err
}

// ReadIntLe consumes four bytes as a little-endian int32.
func (b *Buffer) ReadIntLe() (int32, error) {
	v, err := b.readUint("ReadIntLe", 4)
	return int32(bits.ReverseBytes32(uint32(v))), err
}

// ReadLong consumes eight bytes as a big-endian int64.
func (b *Buffer) ReadLong() (int64, error) {
	v, err := b.readUint("ReadLong", 8)
	return int64(v), err
}

// ReadLongLe consumes eight bytes as a little-endian int64.
func (b *Buffer) ReadLongLe() (int64, error) {
	v, err := b.readUint("ReadLongLe", 8)
	return int64(bits.ReverseBytes64(v)), err
}

// =============================================================================
// Decimal and hexadecimal text
// =============================================================================

// WriteDecimalLong appends v in ASCII decimal with no padding, preceded by
// '-' when negative.
func (b *Buffer) WriteDecimalLong(v int64) {
	b.checkReleased()
	switch v {
	case 0:
		b.list.writeByte('0')
		return
	case math.MinInt64:
		b.list.writeString(minInt64Decimal)
		return
	}
	negative := v < 0
	if negative {
		v = -v
	}
	width := decimalWidth(uint64(v))
	if negative {
		width++
	}
	t := b.list.writableTail(width)
	data := t.c.data[t.rear : t.rear+width]
	for i := width - 1; v != 0; i-- {
		data[i] = byte('0' + v%10)
		v /= 10
	}
	if negative {
		data[0] = '-'
	}
	t.rear += width
	b.list.size += int64(width)
}

func decimalWidth(v uint64) int {
	w := 1
	for v >= 10 {
		v /= 10
		w++
	}
	return w
}

// WriteHexadecimalUnsignedLong appends v in lowercase hex with no padding.
// Zero is written as "0".
func (b *Buffer) WriteHexadecimalUnsignedLong(v uint64) {
	b.checkReleased()
	if v == 0 {
		b.list.writeByte('0')
		return
	}
	width := (bits.Len64(v) + 3) / 4
	t := b.list.writableTail(width)
	data := t.c.data[t.rear : t.rear+width]
	for i := width - 1; i >= 0; i-- {
		data[i] = hexDigits[v&0xf]
		v >>= 4
	}
	t.rear += width
	b.list.size += int64(width)
}

// ReadDecimalLong consumes an optionally signed decimal number. Parsing stops
// at the first byte that is not a digit; that byte is not consumed.
//
// Returns a MalformedDataError when the value would overflow int64 or when no
// digit is present, and an EndOfStreamError when the buffer runs out before a
// digit. On error nothing is consumed.
func (b *Buffer) ReadDecimalLong() (int64, error) {
	const op = "ReadDecimalLong"
	if b.list.size == 0 {
		return 0, &EndOfStreamError{Op: op, Want: 1}
	}

	const overflowZone = math.MinInt64 / 10
	overflowDigit := int64(math.MinInt64%10 + 1)

	// Accumulate negatively: the negative range is one larger.
	var (
		value    int64
		seen     int64
		negative bool
	)
scan:
	for s := b.list.head; s != nil; s = s.next {
		for _, c := range s.Bytes() {
			switch {
			case c >= '0' && c <= '9':
				digit := int64('0') - int64(c)
				if value < overflowZone || value == overflowZone && digit < overflowDigit {
					return 0, &MalformedDataError{Op: op, Msg: "number too large: " + b.prefix(seen+1)}
				}
				value = value*10 + digit
			case c == '-' && seen == 0:
				negative = true
				overflowDigit--
			default:
				break scan
			}
			seen++
		}
	}

	minimum := int64(1)
	if negative {
		minimum = 2
	}
	if seen < minimum {
		if seen == b.list.size {
			return 0, &EndOfStreamError{Op: op, Want: minimum, Have: seen}
		}
		return 0, &MalformedDataError{Op: op, Msg: fmt.Sprintf(
			"expected leading [0-9] or '-' character but was 0x%02x", b.list.getByte(seen))}
	}

	b.list.remove(seen)
	if negative {
		return value, nil
	}
	return -value, nil
}

// ReadHexadecimalUnsignedLong consumes hex digits (either case) as a uint64.
// Parsing stops at the first non-hex byte, which is not consumed.
//
// Returns a MalformedDataError when a 17th significant digit would overflow
// or when no digit is present. On error nothing is consumed.
func (b *Buffer) ReadHexadecimalUnsignedLong() (uint64, error) {
	const op = "ReadHexadecimalUnsignedLong"
	if b.list.size == 0 {
		return 0, &EndOfStreamError{Op: op, Want: 1}
	}

	var (
		value uint64
		seen  int64
	)
scan:
	for s := b.list.head; s != nil; s = s.next {
		for _, c := range s.Bytes() {
			digit, ok := hexValue(c)
			if !ok {
				break scan
			}
			if value&0xf000000000000000 != 0 {
				return 0, &MalformedDataError{Op: op, Msg: "number too large: " + b.prefix(seen+1)}
			}
			value = value<<4 | digit
			seen++
		}
	}

	if seen == 0 {
		return 0, &MalformedDataError{Op: op, Msg: fmt.Sprintf(
			"expected leading [0-9a-fA-F] character but was 0x%02x", b.list.getByte(0))}
	}
	b.list.remove(seen)
	return value, nil
}

func hexValue(c byte) (uint64, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint64(c - '0'), true
	case c >= 'a' && c <= 'f':
		return uint64(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return uint64(c-'A') + 10, true
	}
	return 0, false
}

// prefix returns the first n bytes (or fewer) as a string, for error messages.
func (b *Buffer) prefix(n int64) string {
	n = min(n, b.list.size)
	var sb strings.Builder
	for s := b.list.head; s != nil && n > 0; s = s.next {
		m := min(int64(s.Len()), n)
		sb.Write(s.Bytes()[:m])
		n -= m
	}
	return sb.String()
}

// =============================================================================
// Text
// =============================================================================

// WriteUTF8 appends s. Go strings are already UTF-8, so no transcoding happens.
func (b *Buffer) WriteUTF8(s string) {
	b.checkReleased()
	b.list.writeString(s)
}

// WriteRune appends the UTF-8 encoding of r. Invalid runes are written as
// U+FFFD. Implements the rune half of bufio-style writers.
func (b *Buffer) WriteRune(r rune) (int, error) {
	b.checkReleased()
	var tmp [utf8.UTFMax]byte
	n := utf8.EncodeRune(tmp[:], r)
	b.list.write(tmp[:n])
	return n, nil
}

// WriteStringEncoded appends s encoded with enc.
func (b *Buffer) WriteStringEncoded(s string, enc encoding.Encoding) error {
	encoded, err := enc.NewEncoder().String(s)
	if err != nil {
		return &MalformedDataError{Op: "WriteStringEncoded", Msg: "unencodable text", Err: err}
	}
	b.WriteUTF8(encoded)
	return nil
}

// ReadUTF8 consumes n bytes and returns them as a string.
func (b *Buffer) ReadUTF8(n int64) (string, error) {
	if n < 0 {
		panic(&ArgumentError{Op: "ReadUTF8", Msg: "byteCount < 0"})
	}
	if !b.list.has(n) {
		return "", &EndOfStreamError{Op: "ReadUTF8", Want: n, Have: b.list.size}
	}
	if n == 0 {
		return "", nil
	}
	var s string
	if h := b.list.head; int64(h.Len()) >= n {
		s = string(h.c.data[h.front : h.front+int(n)])
	} else {
		s = b.prefix(n)
	}
	b.list.remove(n)
	return s, nil
}

// ReadUTF8All consumes the whole buffer as a string.
func (b *Buffer) ReadUTF8All() string {
	s, _ := b.ReadUTF8(b.list.size)
	return s
}

// ReadRune consumes one UTF-8 encoded code point. Invalid or truncated
// sequences yield (utf8.RuneError, 1) and consume a single byte.
// Implements io.RuneReader.
func (b *Buffer) ReadRune() (r rune, size int, err error) {
	if b.list.size == 0 {
		return 0, 0, io.EOF
	}
	var tmp [utf8.UTFMax]byte
	n := 0
	for s := b.list.head; s != nil && n < len(tmp); s = s.next {
		n += copy(tmp[n:], s.Bytes())
	}
	r, size = utf8.DecodeRune(tmp[:n])
	b.list.remove(int64(size))
	return r, size, nil
}

// ReadStringEncoded consumes n bytes and decodes them with enc.
func (b *Buffer) ReadStringEncoded(n int64, enc encoding.Encoding) (string, error) {
	raw, err := b.ReadByteArrayN(n)
	if err != nil {
		return "", err
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", &MalformedDataError{Op: "ReadStringEncoded", Msg: "undecodable text", Err: err}
	}
	return string(decoded), nil
}

// =============================================================================
// Byte arrays
// =============================================================================

// ReadByteArray consumes the whole buffer.
func (b *Buffer) ReadByteArray() []byte {
	p := make([]byte, b.list.size)
	b.list.read(p)
	return p
}

// ReadByteArrayN consumes exactly n bytes. Nothing is consumed when fewer are
// available.
func (b *Buffer) ReadByteArrayN(n int64) ([]byte, error) {
	if n < 0 {
		panic(&ArgumentError{Op: "ReadByteArrayN", Msg: "byteCount < 0"})
	}
	if !b.list.has(n) {
		return nil, &EndOfStreamError{Op: "ReadByteArrayN", Want: n, Have: b.list.size}
	}
	p := make([]byte, n)
	b.list.read(p)
	return p, nil
}

// ReadFully fills p completely. Nothing is consumed when fewer than len(p)
// bytes are available.
func (b *Buffer) ReadFully(p []byte) error {
	if !b.list.has(int64(len(p))) {
		return &EndOfStreamError{Op: "ReadFully", Want: int64(len(p)), Have: b.list.size}
	}
	b.list.read(p)
	return nil
}

// ReadByteString consumes the whole buffer as a ByteString.
func (b *Buffer) ReadByteString() ByteString {
	return ByteString{data: b.ReadByteArray()}
}

// ReadByteStringN consumes exactly n bytes as a ByteString.
func (b *Buffer) ReadByteStringN(n int64) (ByteString, error) {
	p, err := b.ReadByteArrayN(n)
	if err != nil {
		return ByteString{}, err
	}
	return ByteString{data: p}, nil
}

// WriteByteString appends the bytes of bs.
func (b *Buffer) WriteByteString(bs ByteString) {
	b.checkReleased()
	b.list.write(bs.data)
}
