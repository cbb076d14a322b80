package chunkio

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"unicode/utf8"

	sha256 "github.com/minio/sha256-simd"
	"golang.org/x/text/encoding"
)

// ByteString is an immutable sequence of bytes. The zero value is empty.
type ByteString struct {
	data []byte
}

// Of returns a ByteString holding a copy of p.
func Of(p ...byte) ByteString {
	return ByteString{data: bytes.Clone(p)}
}

// EncodeUTF8 returns the bytes of s.
func EncodeUTF8(s string) ByteString {
	return ByteString{data: []byte(s)}
}

// DecodeHex parses an even-length hex string.
func DecodeHex(s string) (ByteString, error) {
	p, err := hex.DecodeString(s)
	if err != nil {
		return ByteString{}, &MalformedDataError{Op: "DecodeHex", Msg: "invalid hex", Err: err}
	}
	return ByteString{data: p}, nil
}

// Len returns the number of bytes.
func (bs ByteString) Len() int { return len(bs.data) }

// At returns the byte at i. It panics with a BoundsError when i is out of range.
func (bs ByteString) At(i int) byte {
	checkOffsetAndCount("At", int64(len(bs.data)), int64(i), 1)
	return bs.data[i]
}

// Bytes returns a copy of the contents.
func (bs ByteString) Bytes() []byte { return bytes.Clone(bs.data) }

// UTF8 returns the contents as a string.
func (bs ByteString) UTF8() string { return string(bs.data) }

// Hex returns the contents in lowercase hex.
func (bs ByteString) Hex() string { return hex.EncodeToString(bs.data) }

// Base64 returns the contents in standard base64 with padding.
func (bs ByteString) Base64() string { return base64.StdEncoding.EncodeToString(bs.data) }

// Decode returns the contents decoded with enc.
func (bs ByteString) Decode(enc encoding.Encoding) (string, error) {
	out, err := enc.NewDecoder().Bytes(bs.data)
	if err != nil {
		return "", &MalformedDataError{Op: "Decode", Msg: "undecodable text", Err: err}
	}
	return string(out), nil
}

// Equal reports whether bs and other hold the same bytes.
func (bs ByteString) Equal(other ByteString) bool { return bytes.Equal(bs.data, other.data) }

// RangeEquals reports whether n bytes at offset equal n bytes of other at
// otherOffset. Out-of-range arguments yield false.
func (bs ByteString) RangeEquals(offset int, other ByteString, otherOffset, n int) bool {
	if offset < 0 || otherOffset < 0 || n < 0 ||
		len(bs.data)-offset < n || len(other.data)-otherOffset < n {
		return false
	}
	return bytes.Equal(bs.data[offset:offset+n], other.data[otherOffset:otherOffset+n])
}

// HasPrefix reports whether bs begins with prefix.
func (bs ByteString) HasPrefix(prefix ByteString) bool { return bytes.HasPrefix(bs.data, prefix.data) }

// Substring returns bytes [begin, end).
func (bs ByteString) Substring(begin, end int) ByteString {
	checkOffsetAndCount("Substring", int64(len(bs.data)), int64(begin), int64(end-begin))
	return ByteString{data: bs.data[begin:end]}
}

// SHA256 returns the SHA-256 digest of the contents.
func (bs ByteString) SHA256() ByteString {
	sum := sha256.Sum256(bs.data)
	return ByteString{data: sum[:]}
}

// String returns the text when it is valid UTF-8, and a hex form otherwise.
func (bs ByteString) String() string {
	if len(bs.data) == 0 {
		return "[size=0]"
	}
	if utf8.Valid(bs.data) {
		return "[text=" + string(bs.data) + "]"
	}
	return "[hex=" + bs.Hex() + "]"
}

// Options is a fixed set of candidates for Buffer.Select and
// BufferedSource.Select.
type Options struct {
	items  []ByteString
	maxLen int
}

// NewOptions builds an option set. It panics with an ArgumentError when an
// option is empty.
func NewOptions(items ...ByteString) *Options {
	o := &Options{items: make([]ByteString, len(items))}
	for i, it := range items {
		if it.Len() == 0 {
			panic(&ArgumentError{Op: "NewOptions", Msg: "empty option"})
		}
		o.items[i] = it
		o.maxLen = max(o.maxLen, it.Len())
	}
	return o
}

// Len returns the number of options.
func (o *Options) Len() int { return len(o.items) }

// At returns option i.
func (o *Options) At(i int) ByteString { return o.items[i] }
