package payload

import (
	"io"
	"sync/atomic"
)

// Counter is a pass-through writer that tallies every byte handed to the
// underlying writer without altering the data.
type Counter struct {
	w     io.Writer
	bytes atomic.Int64
}

// NewCounter wraps w
func NewCounter(w io.Writer) *Counter {
	return &Counter{w: w}
}

// Write implements io.Writer
func (c *Counter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.bytes.Add(int64(n))
	return n, err
}

// Bytes returns the number of bytes written so far
func (c *Counter) Bytes() int64 {
	return c.bytes.Load()
}
