package payload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/textproto"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/guided-traffic/payload-gateway/internal/bounded"
	"github.com/guided-traffic/payload-gateway/internal/monitoring"
	"github.com/guided-traffic/payload-gateway/internal/payload/multipart"
	"github.com/sirupsen/logrus"
)

// PartFile is recorded for a multipart part persisted in file output mode
type PartFile struct {
	Filename string               `json:"filename"`
	Path     string               `json:"path"`
	Header   textproto.MIMEHeader `json:"headers"`
	Bytes    int64                `json:"bytes"`
}

// Stream is recorded for a multipart part in stream output mode. The part is
// buffered because it is only readable while the tokenizer sits on it.
type Stream struct {
	io.Reader
	Filename string
	Header   textproto.MIMEHeader
}

type writeResult struct {
	id     string
	part   *multipart.Part
	record FileRecord
	err    error
}

// coordinator consumes tokenizer events and persisted-file completions and
// finalizes the accumulated mapping exactly once
type coordinator struct {
	opts      Options
	persister *Persister
	logger    *logrus.Entry

	acc       *Accumulator
	pending   map[string]struct{}
	persisted []string
	closed    bool

	writes chan writeResult
	done   *resolver[map[string]any]
}

func newCoordinator(opts Options, persister *Persister, logger *logrus.Entry) *coordinator {
	return &coordinator{
		opts:      opts,
		persister: persister,
		logger:    logger,
		acc:       NewAccumulator(),
		pending:   make(map[string]struct{}),
		writes:    make(chan writeResult),
		done:      newResolver[map[string]any](),
	}
}

// parseMultipart runs the tokenizer over source and coordinates its events.
// Returning cancels the tokenizer and every write still in flight.
func (p *Parser) parseMultipart(ctx context.Context, source io.Reader, ct ContentType, opts Options) (map[string]any, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tokenizer := multipart.New(source, ct.Boundary)
	go tokenizer.Run(ctx)

	c := newCoordinator(opts, p.persisterFor(opts.Uploads), p.logger)
	return c.run(ctx, tokenizer.Events())
}

func (c *coordinator) run(ctx context.Context, events <-chan multipart.Event) (map[string]any, error) {
	for !c.done.isResolved() {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				if !c.closed {
					c.abort(newError(KindInvalidMultipart, "Invalid multipart payload format", io.ErrUnexpectedEOF))
				}
				continue
			}
			c.handleEvent(ctx, ev)
		case res := <-c.writes:
			c.handleWrite(res)
		case <-ctx.Done():
			c.abort(ctx.Err())
		}
	}
	return c.done.result()
}

func (c *coordinator) handleEvent(ctx context.Context, ev multipart.Event) {
	switch ev.Kind {
	case multipart.EventError:
		c.abort(classifyMultipartError(ev.Err))
	case multipart.EventField:
		monitoring.RecordMultipartPart("field")
		c.acc.Set(ev.Name, ev.Value)
	case multipart.EventPart:
		c.handlePart(ctx, ev.Part)
	case multipart.EventClose:
		c.closed = true
		if len(c.pending) == 0 {
			c.finalize()
			return
		}
		c.logger.WithField("pending_writes", len(c.pending)).Debug("Multipart stream closed, waiting for file writes")
	}
}

func (c *coordinator) handlePart(ctx context.Context, part *multipart.Part) {
	monitoring.RecordMultipartPart(string(c.opts.Output))

	switch c.opts.Output {
	case OutputFile:
		id := uuid.NewString()
		c.pending[id] = struct{}{}
		monitoring.MultipartPendingWrites.Inc()
		go c.write(ctx, id, part)

	case OutputStream:
		data, err := c.readPart(ctx, part)
		if err != nil {
			c.abort(err)
			return
		}
		c.acc.Set(part.Name, &Stream{
			Reader:   bytes.NewReader(data),
			Filename: part.Filename,
			Header:   part.Header,
		})

	default:
		data, err := c.readPart(ctx, part)
		if err != nil {
			c.abort(err)
			return
		}
		c.acc.Set(part.Name, materializePart(data, part.ContentType()))
	}
}

// write persists one part. A result nobody is waiting for any more is
// discarded together with its file.
func (c *coordinator) write(ctx context.Context, id string, part *multipart.Part) {
	record, err := c.persister.Write(ctx, part)
	_ = part.Close()

	select {
	case c.writes <- writeResult{id: id, part: part, record: record, err: err}:
	case <-ctx.Done():
		monitoring.MultipartPendingWrites.Dec()
		if err == nil {
			removeQuietly(record.Path, c.logger)
		}
	}
}

func (c *coordinator) handleWrite(res writeResult) {
	delete(c.pending, res.id)
	monitoring.MultipartPendingWrites.Dec()

	if res.err != nil {
		monitoring.RecordFilePersisted("error", 0)
		c.abort(res.err)
		return
	}

	monitoring.RecordFilePersisted("success", res.record.Bytes)
	c.persisted = append(c.persisted, res.record.Path)
	c.acc.Set(res.part.Name, PartFile{
		Filename: res.part.Filename,
		Path:     res.record.Path,
		Header:   res.part.Header,
		Bytes:    res.record.Bytes,
	})

	if c.closed && len(c.pending) == 0 {
		c.finalize()
	}
}

func (c *coordinator) readPart(ctx context.Context, part *multipart.Part) ([]byte, error) {
	defer part.Close()

	data, err := bounded.Read(ctx, part, bounded.Options{})
	if err != nil {
		return nil, classifyMultipartError(err)
	}
	return data, nil
}

func (c *coordinator) finalize() {
	c.done.resolve(c.acc.Finalize(), nil)
}

// abort finalizes with err and removes every file this request persisted
func (c *coordinator) abort(err error) {
	if !c.done.resolve(nil, err) {
		return
	}

	c.logger.WithError(err).WithFields(logrus.Fields{
		"pending_writes":  len(c.pending),
		"persisted_files": len(c.persisted),
	}).Debug("Multipart parse aborted")

	for _, path := range c.persisted {
		removeQuietly(path, c.logger)
	}
}

// materializePart applies the part's own content-type. Parts without one stay
// raw, and a part that fails to materialize falls back to its raw bytes.
func materializePart(data []byte, contentType string) any {
	mime, _, _ := strings.Cut(contentType, ";")
	mime = strings.ToLower(strings.TrimSpace(mime))

	if mime == "" {
		return data
	}
	if len(data) == 0 {
		return map[string]any{}
	}

	value, err := Materialize(data, mime)
	if err != nil {
		return data
	}
	return value
}

func classifyMultipartError(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return newError(KindInvalidMultipart, "Invalid multipart payload format", err)
}

func removeQuietly(path string, logger *logrus.Entry) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).WithField("path", path).Debug("Failed to remove upload file")
	}
}
