package payload

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func deflateBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// corruptChecksum flips a bit in the gzip CRC32 trailer
func corruptChecksum(data []byte) []byte {
	out := append([]byte(nil), data...)
	out[len(out)-8] ^= 0xff
	return out
}

func TestDecompress_RoundTrip(t *testing.T) {
	body := []byte(strings.Repeat(`{"name":"payload","value":42}`, 100))

	tests := []struct {
		name     string
		encoding string
		input    []byte
	}{
		{"gzip", "gzip", gzipBytes(t, body)},
		{"gzip mixed case", " GZip ", gzipBytes(t, body)},
		{"deflate", "deflate", deflateBytes(t, body)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := io.ReadAll(Decompress(bytes.NewReader(tt.input), tt.encoding))
			require.NoError(t, err)
			assert.Equal(t, body, out)
		})
	}
}

func TestDecompress_PassThrough(t *testing.T) {
	for _, encoding := range []string{"", "identity", "br"} {
		src := strings.NewReader("plain")
		assert.Same(t, src, Decompress(src, encoding), "encoding %q", encoding)
	}
}

func TestDecompress_CorruptedPayloadFailsOnce(t *testing.T) {
	input := corruptChecksum(gzipBytes(t, []byte(`{"a":1}`)))
	dec := Decompress(bytes.NewReader(input), "gzip").(*decoder)

	_, err := io.ReadAll(dec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadCompressedPayload))
	assert.Equal(t, "Invalid compressed payload", err.(*Error).Message)

	// Every later read replays the same error value
	for i := 0; i < 3; i++ {
		n, again := dec.Read(make([]byte, 16))
		assert.Zero(t, n)
		assert.Same(t, err, again)
	}
	assert.Equal(t, int64(0), dec.failure.discarded.Load())
}

func TestDecompress_InvalidHeader(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
	}{
		{"gzip", "gzip"},
		{"deflate", "deflate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := io.ReadAll(Decompress(strings.NewReader("definitely not compressed"), tt.encoding))
			require.Error(t, err)
			assert.Equal(t, KindBadCompressedPayload, KindOf(err))
		})
	}
}

func TestDecoder_RepeatedFailuresAreDiscarded(t *testing.T) {
	dec := Decompress(strings.NewReader(""), "gzip").(*decoder)

	first := dec.fail(errors.New("first failure"))
	second := dec.fail(errors.New("second failure"))

	assert.Same(t, first, second)
	assert.Contains(t, first.Error(), "first failure")
	assert.Equal(t, int64(1), dec.failure.discarded.Load())
}

func TestDecoder_ClassifiedSourceErrorPassesThrough(t *testing.T) {
	timeout := newError(KindRequestTimeout, "Request payload read timed out", nil)
	dec := Decompress(&failingReader{err: timeout}, "gzip")

	_, err := io.ReadAll(dec)
	assert.Same(t, timeout, err)
}

func TestDecoder_CloseBeforeRead(t *testing.T) {
	dec := Decompress(strings.NewReader(""), "deflate").(io.Closer)
	assert.NoError(t, dec.Close())
}

// stallReader blocks its first read until release is closed
type stallReader struct {
	entered chan struct{}
	release chan struct{}
	rest    io.Reader
	once    bool
}

func newStallReader(rest io.Reader) *stallReader {
	return &stallReader{entered: make(chan struct{}), release: make(chan struct{}), rest: rest}
}

func (s *stallReader) Read(p []byte) (int, error) {
	if !s.once {
		s.once = true
		close(s.entered)
		<-s.release
	}
	return s.rest.Read(p)
}

func TestDecoder_CloseDuringReadWaitsForReader(t *testing.T) {
	compressed := gzipBytes(t, []byte(strings.Repeat("payload ", 64)))
	stall := newStallReader(bytes.NewReader(compressed[20:]))
	dec := Decompress(io.MultiReader(bytes.NewReader(compressed[:20]), stall), "gzip").(*decoder)

	readDone := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(dec)
		readDone <- err
	}()

	<-stall.entered
	require.NoError(t, dec.Close())

	dec.mu.Lock()
	released := dec.released
	dec.mu.Unlock()
	assert.False(t, released, "decoder released while a read was in flight")

	close(stall.release)
	if err := <-readDone; err != nil {
		assert.ErrorIs(t, err, errDecoderClosed)
	}

	_, err := dec.Read(make([]byte, 8))
	assert.ErrorIs(t, err, errDecoderClosed)

	dec.mu.Lock()
	defer dec.mu.Unlock()
	assert.True(t, dec.released)
}
