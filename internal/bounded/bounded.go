// Package bounded materializes a stream into memory under a byte limit and an
// optional timeout.
package bounded

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrTooLarge is returned when the stream holds more than MaxBytes
	ErrTooLarge = errors.New("payload exceeds the maximum allowed size")
	// ErrTimeout is returned when the stream is not drained within Timeout
	ErrTimeout = errors.New("payload read timed out")
)

// Options bound a Read call. Zero values disable the respective limit.
type Options struct {
	MaxBytes int64
	Timeout  time.Duration
}

type readResult struct {
	data []byte
	err  error
}

// Read drains r into memory. When the timeout elapses first, r is closed if it
// is an io.Closer so the background read can finish. That read may still be
// inside r.Read when Read returns, so closers of wrapped readers must wait for
// it before releasing shared state.
func Read(ctx context.Context, r io.Reader, opts Options) ([]byte, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan readResult, 1)
	go func() {
		data, err := readAll(r, opts.MaxBytes)
		results <- readResult{data: data, err: err}
	}()

	select {
	case res := <-results:
		return res.data, res.err
	case <-ctx.Done():
		if closer, ok := r.(io.Closer); ok {
			_ = closer.Close()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func readAll(r io.Reader, maxBytes int64) ([]byte, error) {
	var buf bytes.Buffer
	if maxBytes <= 0 {
		_, err := buf.ReadFrom(r)
		return buf.Bytes(), err
	}

	// One byte past the limit tells an exact fit from an overrun
	n, err := buf.ReadFrom(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if n > maxBytes {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}
