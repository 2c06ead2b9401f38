// Package multipart turns a multipart/form-data stream into a sequence of
// part, field, close and error events.
package multipart

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"sync"
)

// EventKind identifies a tokenizer event
type EventKind int

const (
	// EventPart carries a part with a filename; its body must be read or closed
	// before the tokenizer moves on
	EventPart EventKind = iota
	// EventField carries a part without a filename as a name/value pair
	EventField
	// EventClose signals the end of the multipart stream
	EventClose
	// EventError signals a malformed stream; no event follows it
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPart:
		return "part"
	case EventField:
		return "field"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by the tokenizer
type Event struct {
	Kind  EventKind
	Part  *Part
	Name  string
	Value string
	Err   error
}

// Part is a streamed multipart section. It implements io.ReadCloser.
type Part struct {
	Name     string
	Filename string
	Header   textproto.MIMEHeader

	body     io.Reader
	released chan struct{}
	once     sync.Once

	mu      sync.Mutex
	reading bool
	closed  bool
}

// ContentType returns the part's own content-type header
func (p *Part) ContentType() string {
	return p.Header.Get("Content-Type")
}

// Read implements io.Reader. Reaching the end of the part releases it.
func (p *Part) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	p.reading = true
	p.mu.Unlock()

	n, err := p.body.Read(b)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.reading = false
	if err != nil {
		p.closed = true
	}
	if p.closed {
		p.release()
	}
	return n, err
}

// Close releases the part; unread bytes are skipped by the tokenizer. A read
// in flight on another goroutine finishes before the tokenizer moves on.
func (p *Part) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if !p.reading {
		p.release()
	}
	return nil
}

func (p *Part) release() {
	p.once.Do(func() { close(p.released) })
}

// Tokenizer reads a multipart body and emits events on a channel
type Tokenizer struct {
	reader *multipart.Reader
	events chan Event
}

// New creates a tokenizer for a body with the given boundary
func New(r io.Reader, boundary string) *Tokenizer {
	return &Tokenizer{
		reader: multipart.NewReader(r, boundary),
		events: make(chan Event),
	}
}

// Events returns the event channel. It is closed after the close or error event.
func (t *Tokenizer) Events() <-chan Event {
	return t.events
}

// Run emits events until the stream ends, fails or ctx is cancelled
func (t *Tokenizer) Run(ctx context.Context) {
	defer close(t.events)

	for {
		part, err := t.reader.NextPart()
		if errors.Is(err, io.EOF) {
			t.emit(ctx, Event{Kind: EventClose})
			return
		}
		if err != nil {
			t.emit(ctx, Event{Kind: EventError, Err: err})
			return
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(part)
			if err != nil {
				t.emit(ctx, Event{Kind: EventError, Err: err})
				return
			}
			if !t.emit(ctx, Event{Kind: EventField, Name: part.FormName(), Value: string(value)}) {
				return
			}
			continue
		}

		p := &Part{
			Name:     part.FormName(),
			Filename: part.FileName(),
			Header:   part.Header,
			body:     part,
			released: make(chan struct{}),
		}
		if !t.emit(ctx, Event{Kind: EventPart, Part: p}) {
			return
		}

		// The underlying reader is only valid until NextPart is called again
		select {
		case <-p.released:
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tokenizer) emit(ctx context.Context, ev Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
