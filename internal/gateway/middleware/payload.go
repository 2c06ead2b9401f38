package middleware

import (
	"net/http"

	"github.com/guided-traffic/payload-gateway/internal/gateway/response"
	"github.com/guided-traffic/payload-gateway/internal/payload"
	"github.com/sirupsen/logrus"
)

// Payload reads request bodies ahead of the route handler
type Payload struct {
	parser *payload.Parser
	errors *response.ErrorWriter
	logger *logrus.Entry
}

// NewPayload creates the payload middleware
func NewPayload(parser *payload.Parser, logger *logrus.Entry) *Payload {
	return &Payload{
		parser: parser,
		errors: response.NewErrorWriter(logger),
		logger: logger,
	}
}

// Middleware parses the body with opts and stores the result in the request
// context for payload.FromContext. Failures are answered here.
func (p *Payload) Middleware(opts payload.Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := p.parser.Parse(r, opts)
			if err != nil {
				p.errors.WritePayloadError(w, r, err)
				return
			}

			p.logger.WithFields(logrus.Fields{
				"request_id": RequestIDFromContext(r.Context()),
				"mime":       result.Mime,
				"output":     string(opts.Output),
				"present":    result.Value != nil,
			}).Debug("Request payload read")

			next.ServeHTTP(w, r.WithContext(payload.NewContext(r.Context(), result)))
		})
	}
}
