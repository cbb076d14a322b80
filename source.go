package chunkio

// Source supplies bytes by appending them to a Buffer.
//
// ReadBuffer moves at least one and at most n bytes into sink and returns the
// count. At the end of the stream it returns (0, io.EOF). n must not be
// negative.
type Source interface {
	ReadBuffer(sink *Buffer, n int64) (int64, error)
	Close() error
	Timeout() Timeout
}

// Sink receives bytes by draining them from a Buffer.
//
// WriteBuffer removes exactly n bytes from the head of src. Implementations
// that fail partway may leave some of them in src.
type Sink interface {
	WriteBuffer(src *Buffer, n int64) error
	Flush() error
	Close() error
	Timeout() Timeout
}
