package payload

import (
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Decompress wraps src with a gzip or deflate decoder when encoding names one,
// and returns src unchanged otherwise. The decoder is created lazily on the
// first read so no body byte is consumed before a consumer asks for it.
func Decompress(src io.Reader, encoding string) io.Reader {
	switch encoding = strings.ToLower(strings.TrimSpace(encoding)); encoding {
	case "gzip", "deflate":
		return &decoder{
			src:      src,
			encoding: encoding,
			failure:  newResolver[struct{}](),
		}
	default:
		return src
	}
}

// errDecoderClosed is returned by reads after Close
var errDecoderClosed = errors.New("payload decoder closed")

// decoder surfaces the first decoding failure exactly once as a
// BadCompressedPayload error and replays that same error on every later read.
type decoder struct {
	src      io.Reader
	encoding string
	failure  *resolver[struct{}]

	mu       sync.Mutex
	rc       io.ReadCloser
	reading  bool
	closed   bool
	released bool
}

func (d *decoder) Read(p []byte) (int, error) {
	if d.failure.isResolved() {
		_, err := d.failure.result()
		return 0, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, errDecoderClosed
	}
	d.reading = true
	rc := d.rc
	d.mu.Unlock()

	n, err := d.read(&rc, p)

	d.mu.Lock()
	d.rc = rc
	d.reading = false
	if d.closed {
		d.releaseLocked()
	}
	d.mu.Unlock()

	return n, err
}

func (d *decoder) read(rc *io.ReadCloser, p []byte) (int, error) {
	if *rc == nil {
		opened, err := d.open()
		if err != nil {
			return 0, d.fail(err)
		}
		*rc = opened
	}

	n, err := (*rc).Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, d.fail(err)
	}
	return n, err
}

// Close releases the underlying decoder. A read still in flight on another
// goroutine keeps the decoder until it returns and releases it then.
func (d *decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.reading {
		return nil
	}
	return d.releaseLocked()
}

func (d *decoder) releaseLocked() error {
	if d.rc == nil || d.released {
		return nil
	}
	d.released = true
	return d.rc.Close()
}

func (d *decoder) open() (io.ReadCloser, error) {
	if d.encoding == "gzip" {
		return gzip.NewReader(d.src)
	}
	return zlib.NewReader(d.src)
}

func (d *decoder) fail(cause error) error {
	// A source error that is already classified passes through untouched
	var pe *Error
	if !errors.As(cause, &pe) {
		pe = newError(KindBadCompressedPayload, "Invalid compressed payload", cause)
	}
	d.failure.resolve(struct{}{}, pe)
	_, err := d.failure.result()
	return err
}
