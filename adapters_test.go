package chunkio

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Reader and Writer Adapter Tests
// =============================================================================

func TestReaderSource_Reads(t *testing.T) {
	src := ReaderSource(strings.NewReader("hello world"), NoTimeout)
	buf := New()
	defer buf.Release()

	n, err := src.ReadBuffer(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "hello", buf.String())

	n, err = src.ReadBuffer(buf, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	_, err = src.ReadBuffer(buf, 100)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "hello world", buf.String())
	assert.Same(t, buf.Head(), buf.list.tail, "failed read leaves no empty segment behind")
}

type zeroReader struct{}

func (zeroReader) Read([]byte) (int, error) { return 0, nil }

func TestReaderSource_NoProgress(t *testing.T) {
	buf := New()
	defer buf.Release()

	_, err := ReaderSource(zeroReader{}, NoTimeout).ReadBuffer(buf, 10)
	assert.Equal(t, io.ErrNoProgress, err)
	assert.Nil(t, buf.Head())
}

func TestReaderSource_DeadlineReached(t *testing.T) {
	buf := New()
	defer buf.Release()

	src := ReaderSource(strings.NewReader("never read"), NoTimeout.WithDeadline(time.Now().Add(-time.Second)))
	_, err := src.ReadBuffer(buf, 10)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.True(t, buf.Exhausted())
}

func TestReaderSource_ArmsConnDeadline(t *testing.T) {
	_, server := unixSocketPair(t)
	buf := New()
	defer buf.Release()

	start := time.Now()
	_, err := ReaderSource(server, NoTimeout.WithTimeout(100*time.Millisecond)).ReadBuffer(buf, 10)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, buf.Exhausted())
}

func TestCopy_DurationTimeoutUsesBufferedPath(t *testing.T) {
	_, inServer := unixSocketPair(t)
	outClient, _ := unixSocketPair(t)

	src := ReaderSource(inServer, NoTimeout.WithTimeout(100*time.Millisecond))
	n, err := Copy(WriterSink(outClient, NoTimeout), src)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, n)
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestReaderSource_Close(t *testing.T) {
	r := &closeRecorder{Reader: strings.NewReader("")}
	require.NoError(t, ReaderSource(r, NoTimeout).Close())
	assert.True(t, r.closed)

	require.NoError(t, ReaderSource(strings.NewReader(""), NoTimeout).Close())
}

func TestWriterSink_PartialWrite(t *testing.T) {
	var out bytes.Buffer
	sink := WriterSink(&out, NoTimeout)

	buf := New()
	defer buf.Release()
	buf.WriteString(strings.Repeat("a", SegmentSize))
	buf.WriteString("tail")

	require.NoError(t, sink.WriteBuffer(buf, SegmentSize+2))
	assert.Equal(t, SegmentSize+2, out.Len())
	assert.Equal(t, "il", buf.String())

	assertPanicsWith[*BoundsError](t, func() { sink.WriteBuffer(buf, 3) })
}

func TestWriterSink_FlushAndClose(t *testing.T) {
	var out bytes.Buffer
	bw := bufio.NewWriter(&out)
	sink := WriterSink(bw, NoTimeout)

	buf := New()
	defer buf.Release()
	buf.WriteString("buffered")
	require.NoError(t, sink.WriteBuffer(buf, buf.Size()))
	assert.Equal(t, 0, out.Len())

	require.NoError(t, sink.Flush())
	assert.Equal(t, "buffered", out.String())
	require.NoError(t, sink.Close())
}

func TestWriterSink_Writev(t *testing.T) {
	client, server := unixSocketPair(t)

	payload := bytes.Repeat([]byte("writev "), 5000)
	buf := New()
	defer buf.Release()
	buf.Write(payload)

	got := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(server)
		got <- data
	}()

	sink := WriterSink(client, NoTimeout)
	require.NoError(t, sink.WriteBuffer(buf, buf.Size()))
	require.NoError(t, client.CloseWrite())

	select {
	case data := <-got:
		assert.Equal(t, payload, data)
	case <-time.After(5 * time.Second):
		t.Fatal("reader never finished")
	}
}

// =============================================================================
// File Adapter Tests
// =============================================================================

func TestFileSinkAndSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")

	sink, err := CreateFileSink(path)
	require.NoError(t, err)
	buf := New()
	defer buf.Release()
	buf.WriteString("hello")
	require.NoError(t, sink.WriteBuffer(buf, buf.Size()))
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())

	sink, err = AppendingFileSink(path)
	require.NoError(t, err)
	buf.WriteString(" world")
	require.NoError(t, sink.WriteBuffer(buf, buf.Size()))
	require.NoError(t, sink.Close())

	src, err := OpenFileSource(path)
	require.NoError(t, err)
	bs := NewBufferedSource(src)
	text, err := bs.ReadUTF8All()
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	require.NoError(t, bs.Close())

	sink, err = CreateFileSink(path)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size(), "create truncates")
}

func TestOpenFileSource_Missing(t *testing.T) {
	_, err := OpenFileSource(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// Copy Tests
// =============================================================================

func TestCopy_Buffered(t *testing.T) {
	input := strings.Repeat("test data\n", 10000)

	var out Buffer
	n, err := Copy(&out, ReaderSource(strings.NewReader(input), NoTimeout))
	require.NoError(t, err)
	assert.Equal(t, int64(len(input)), n)
	assert.Equal(t, input, out.String())
}

func TestCopy_PropagatesErrors(t *testing.T) {
	errRead := errors.New("read failed")
	_, err := Copy(&Buffer{}, ReaderSource(io.MultiReader(strings.NewReader("x"), errReader{errRead}), NoTimeout))
	assert.ErrorIs(t, err, errRead)

	errWrite := errors.New("write failed")
	_, err = Copy(&failingSink{writeErr: errWrite}, ReaderSource(strings.NewReader("x"), NoTimeout))
	assert.ErrorIs(t, err, errWrite)

	_, err = Copy(nil, ReaderSource(strings.NewReader("x"), NoTimeout))
	assert.Error(t, err)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestCopyAndClose(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "from")
	to := filepath.Join(dir, "to")
	payload := bytes.Repeat([]byte{0xca, 0xfe}, 3*SegmentSize)
	require.NoError(t, os.WriteFile(from, payload, 0o644))

	src, err := OpenFileSource(from)
	require.NoError(t, err)
	dst, err := CreateFileSink(to)
	require.NoError(t, err)

	n, err := CopyAndClose(dst, src)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCopyAndClose_ReportsCloseErrors(t *testing.T) {
	errClose := errors.New("close failed")
	dst := &failingSink{closeErr: errClose}
	_, err := CopyAndClose(dst, ReaderSource(strings.NewReader(""), NoTimeout))
	assert.ErrorIs(t, err, errClose)
	assert.True(t, dst.closed)
}

// =============================================================================
// Splice Tests
// =============================================================================

func TestSpliceConn_UnsupportedPlatform(t *testing.T) {
	_, err := SpliceConn(nil, nil)
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestSpliceConn(t *testing.T) {
	inClient, inServer := unixSocketPair(t)
	outClient, outServer := unixSocketPair(t)

	// Small enough to sit in the socket buffer before splicing starts.
	payload := bytes.Repeat([]byte("splice!"), 4096)
	_, err := inClient.Write(payload)
	require.NoError(t, err)
	require.NoError(t, inClient.CloseWrite())

	got := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(outServer)
		got <- data
	}()

	n, err := SpliceConn(outClient, inServer)
	if err == syscall.ENOTSUP {
		t.Skip("splice not supported on this platform")
	}
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	require.NoError(t, outClient.CloseWrite())

	select {
	case data := <-got:
		assert.Equal(t, payload, data)
	case <-time.After(5 * time.Second):
		t.Fatal("reader never finished")
	}
}

func TestCopy_UnixConns(t *testing.T) {
	inClient, inServer := unixSocketPair(t)
	outClient, outServer := unixSocketPair(t)

	payload := bytes.Repeat([]byte("copy me "), 4096)
	_, err := inClient.Write(payload)
	require.NoError(t, err)
	require.NoError(t, inClient.CloseWrite())

	got := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(outServer)
		got <- data
	}()

	// Splice on Linux, buffered copy elsewhere; the result is the same.
	n, err := Copy(WriterSink(outClient, NoTimeout), ReaderSource(inServer, NoTimeout))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	require.NoError(t, outClient.CloseWrite())

	select {
	case data := <-got:
		assert.Equal(t, payload, data)
	case <-time.After(5 * time.Second):
		t.Fatal("reader never finished")
	}
}

// unixSocketPair returns both ends of a connected Unix socket. The test is
// skipped when sockets cannot be created.
func unixSocketPair(t *testing.T) (client, server *net.UnixConn) {
	t.Helper()

	// Short directory: socket paths are limited to ~100 bytes.
	dir, err := os.MkdirTemp("", "cio")
	if err != nil {
		t.Skipf("Unix socket test skipped: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	addr := &net.UnixAddr{Name: filepath.Join(dir, "s.sock"), Net: "unix"}

	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		t.Skipf("Unix socket test skipped: %v", err)
	}
	defer listener.Close()

	errChan := make(chan error, 1)
	go func() {
		var err error
		client, err = net.DialUnix("unix", nil, addr)
		errChan <- err
	}()

	server, err = listener.AcceptUnix()
	if err != nil {
		t.Skipf("Unix socket test skipped: %v", err)
	}
	if err := <-errChan; err != nil {
		server.Close()
		t.Skipf("Unix socket test skipped: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}
