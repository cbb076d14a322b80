// Package hashio computes digests of the bytes flowing through a chunkio
// Source or Sink. Segments are fed to the hash in place.
package hashio

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"hash"

	sha256 "github.com/minio/sha256-simd"
	"lukechampine.com/blake3"

	"github.com/xDarkicex/chunkio"
)

// HashingSource hashes every byte read through it.
type HashingSource struct {
	src chunkio.Source
	h   hash.Hash
}

// NewSource hashes src with h.
func NewSource(src chunkio.Source, h hash.Hash) *HashingSource {
	return &HashingSource{src: src, h: h}
}

func MD5Source(src chunkio.Source) *HashingSource    { return NewSource(src, md5.New()) }
func SHA1Source(src chunkio.Source) *HashingSource   { return NewSource(src, sha1.New()) }
func SHA256Source(src chunkio.Source) *HashingSource { return NewSource(src, sha256.New()) }

// Blake3Source hashes with 256-bit BLAKE3.
func Blake3Source(src chunkio.Source) *HashingSource {
	return NewSource(src, blake3.New(32, nil))
}

// HMACSHA256Source authenticates with HMAC-SHA256 under key.
func HMACSHA256Source(src chunkio.Source, key chunkio.ByteString) *HashingSource {
	return NewSource(src, hmac.New(sha256.New, key.Bytes()))
}

// ReadBuffer reads from upstream and hashes what arrived in sink.
func (s *HashingSource) ReadBuffer(sink *chunkio.Buffer, n int64) (int64, error) {
	offset := sink.Size()
	read, err := s.src.ReadBuffer(sink, n)
	if read > 0 {
		sink.WriteRangeTo(s.h, offset, read)
	}
	return read, err
}

// Sum returns the digest of the bytes read so far.
func (s *HashingSource) Sum() chunkio.ByteString { return chunkio.Of(s.h.Sum(nil)...) }

func (s *HashingSource) Close() error { return s.src.Close() }

func (s *HashingSource) Timeout() chunkio.Timeout { return s.src.Timeout() }

// HashingSink hashes every byte written through it.
type HashingSink struct {
	sink chunkio.Sink
	h    hash.Hash
}

// NewSink hashes writes to sink with h.
func NewSink(sink chunkio.Sink, h hash.Hash) *HashingSink {
	return &HashingSink{sink: sink, h: h}
}

func MD5Sink(sink chunkio.Sink) *HashingSink    { return NewSink(sink, md5.New()) }
func SHA1Sink(sink chunkio.Sink) *HashingSink   { return NewSink(sink, sha1.New()) }
func SHA256Sink(sink chunkio.Sink) *HashingSink { return NewSink(sink, sha256.New()) }

// Blake3Sink hashes with 256-bit BLAKE3.
func Blake3Sink(sink chunkio.Sink) *HashingSink {
	return NewSink(sink, blake3.New(32, nil))
}

// HMACSHA256Sink authenticates with HMAC-SHA256 under key.
func HMACSHA256Sink(sink chunkio.Sink, key chunkio.ByteString) *HashingSink {
	return NewSink(sink, hmac.New(sha256.New, key.Bytes()))
}

// WriteBuffer hashes n bytes of src and passes them downstream.
func (s *HashingSink) WriteBuffer(src *chunkio.Buffer, n int64) error {
	if _, err := src.WriteRangeTo(s.h, 0, n); err != nil {
		return err
	}
	return s.sink.WriteBuffer(src, n)
}

// Sum returns the digest of the bytes written so far.
func (s *HashingSink) Sum() chunkio.ByteString { return chunkio.Of(s.h.Sum(nil)...) }

func (s *HashingSink) Flush() error { return s.sink.Flush() }

func (s *HashingSink) Close() error { return s.sink.Close() }

func (s *HashingSink) Timeout() chunkio.Timeout { return s.sink.Timeout() }

var (
	_ chunkio.Source = (*HashingSource)(nil)
	_ chunkio.Sink   = (*HashingSink)(nil)
)
