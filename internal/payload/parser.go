package payload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/guided-traffic/payload-gateway/internal/bounded"
	"github.com/guided-traffic/payload-gateway/internal/monitoring"
	"github.com/sirupsen/logrus"
)

// Payload is the outcome of reading a request body
type Payload struct {
	// Mime is the negotiated media type, empty when the body was skipped
	Mime string
	// Value is nil when the body was skipped or dropped by the fail action.
	// Data output holds a parsed value, raw bytes or a multipart mapping;
	// stream output an io.ReadCloser whose Close releases the decoder;
	// file output a FileRecord.
	Value any
}

// Parser reads request bodies according to per-route Options
type Parser struct {
	logger       *logrus.Entry
	persisterFor func(dir string) *Persister
}

// NewParser creates a parser
func NewParser(logger *logrus.Entry) *Parser {
	if logger == nil {
		logger = logrus.WithField("component", "payload-parser")
	}
	p := &Parser{logger: logger}
	p.persisterFor = func(dir string) *Persister {
		return NewPersister(dir, logger)
	}
	return p
}

// Parse negotiates, decodes and materializes the body of r
func (p *Parser) Parse(r *http.Request, opts Options) (*Payload, error) {
	opts = opts.withDefaults()

	if skipsBody(r.Method) {
		return &Payload{}, nil
	}

	start := time.Now()

	ct, err := negotiate(r, opts)
	if err != nil {
		monitoring.RecordPayload(string(opts.Output), "", KindOf(err).String(), time.Since(start))
		return nil, err
	}

	result := &Payload{Mime: ct.Mime}

	if !opts.allows(ct.Mime) {
		err := newError(KindUnsupportedMediaType, "Unsupported media type: "+ct.Mime, nil)
		monitoring.RecordPayload(string(opts.Output), ct.Mime, err.Kind.String(), time.Since(start))
		return p.failAction(r, result, err, opts)
	}

	var value any
	if opts.Parse == ParseModeParse {
		value, err = p.parse(r, ct, opts)
	} else {
		value, err = p.raw(r, opts)
	}

	if err != nil {
		monitoring.RecordPayload(string(opts.Output), ct.Mime, outcomeLabel(err), time.Since(start))
		return p.failAction(r, result, err, opts)
	}

	monitoring.RecordPayload(string(opts.Output), ct.Mime, "success", time.Since(start))
	result.Value = value
	return result, nil
}

// failAction routes non-fatal failures through the configured policy
func (p *Parser) failAction(r *http.Request, result *Payload, err error, opts Options) (*Payload, error) {
	kind := KindOf(err)
	if kind == 0 || kind.Fatal() {
		return nil, err
	}

	monitoring.RecordFailAction(string(opts.FailAction), kind.String())

	if opts.FailAction == FailActionLog {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"kind":        kind.String(),
			"mime":        result.Mime,
			"method":      r.Method,
			"path":        r.URL.Path,
			"fail_action": string(opts.FailAction),
		}).Warn("Failed to read request payload")
	}

	if opts.FailAction == FailActionError {
		return nil, err
	}
	return result, nil
}

func (p *Parser) parse(r *http.Request, ct ContentType, opts Options) (any, error) {
	source, closeDecoder := p.source(r, opts, true)

	if ct.Mime == "multipart/form-data" {
		defer closeDecoder()
		return p.parseMultipart(r.Context(), source, ct, opts)
	}

	return p.dispatch(r, source, closeDecoder, ct.Mime, opts, true)
}

func (p *Parser) raw(r *http.Request, opts Options) (any, error) {
	source, closeDecoder := p.source(r, opts, opts.Parse == ParseModeRawGunzip)
	return p.dispatch(r, source, closeDecoder, "", opts, false)
}

// source composes the request body with the optional decoder and tap
func (p *Parser) source(r *http.Request, opts Options, decode bool) (io.Reader, func()) {
	var source io.Reader = r.Body
	if r.Body == nil {
		source = http.NoBody
	}

	closeDecoder := func() {}
	if decode {
		source = Decompress(source, r.Header.Get("Content-Encoding"))
		if closer, ok := source.(io.Closer); ok {
			closeDecoder = func() { _ = closer.Close() }
		}
	}

	if opts.Tap != nil {
		if tap := opts.Tap(r); tap != nil {
			source = io.TeeReader(source, tap)
		}
	}

	return source, closeDecoder
}

// dispatch delivers a decoded source according to the output mode
func (p *Parser) dispatch(r *http.Request, source io.Reader, closeDecoder func(), mime string, opts Options, materialize bool) (any, error) {
	switch opts.Output {
	case OutputStream:
		return streamBody{Reader: source, close: closeDecoder}, nil

	case OutputFile:
		defer closeDecoder()
		record, err := p.persisterFor(opts.Uploads).Write(r.Context(), source)
		if err != nil {
			return nil, err
		}
		p.logger.WithFields(logrus.Fields{
			"path":  record.Path,
			"bytes": record.Bytes,
		}).Debug("Persisted request payload")
		return record, nil

	default:
		defer closeDecoder()
		data, err := readBody(r, source, opts)
		if err != nil {
			return nil, err
		}
		if !materialize {
			return data, nil
		}
		if len(data) == 0 {
			return map[string]any{}, nil
		}
		return Materialize(data, mime)
	}
}

// streamBody is the stream output value
type streamBody struct {
	io.Reader
	close func()
}

func (s streamBody) Close() error {
	s.close()
	return nil
}

type sourceCloser struct {
	io.Reader
	io.Closer
}

// readBody buffers the source under the size limit and client timeout.
// Closing on timeout targets the request body underneath the decoder.
func readBody(r *http.Request, source io.Reader, opts Options) ([]byte, error) {
	var reader io.Reader = source
	if r.Body != nil {
		reader = sourceCloser{Reader: source, Closer: r.Body}
	}

	data, err := bounded.Read(r.Context(), reader, bounded.Options{
		MaxBytes: opts.MaxBytes,
		Timeout:  opts.Timeout,
	})

	var pe *Error
	switch {
	case err == nil:
		return data, nil
	case errors.As(err, &pe):
		return nil, pe
	case errors.Is(err, bounded.ErrTooLarge):
		return nil, newError(KindPayloadTooLarge, "Payload content length greater than maximum allowed", err)
	case errors.Is(err, bounded.ErrTimeout):
		return nil, newError(KindRequestTimeout, "Request payload read timed out", err)
	case errors.Is(err, context.Canceled):
		return nil, err
	default:
		return nil, newError(KindIO, "Failed to read request payload", err)
	}
}

func outcomeLabel(err error) string {
	if kind := KindOf(err); kind != 0 {
		return kind.String()
	}
	return "error"
}
