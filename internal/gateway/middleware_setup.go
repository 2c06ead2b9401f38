package gateway

import (
	"io"
	"net/http"

	"github.com/guided-traffic/payload-gateway/internal/gateway/middleware"
	"github.com/guided-traffic/payload-gateway/internal/monitoring"
	"github.com/guided-traffic/payload-gateway/internal/payload"
	"github.com/sirupsen/logrus"
)

// setupMiddleware sets up the middleware for the server
func (s *Server) setupMiddleware() {
	s.requestTracker = middleware.NewRequestTracker()
	s.httpLogger = middleware.NewLogger(logrus.WithField("component", "http"), s.config.LogHealthRequests)
	s.corsHandler = middleware.NewCORS(s.logger)
	s.payloadReader = middleware.NewPayload(s.parser, logrus.WithField("component", "payload-middleware"))
}

func (s *Server) requestTrackingMiddleware(next http.Handler) http.Handler {
	return s.requestTracker.Middleware(next)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return s.httpLogger.Middleware(next)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return s.corsHandler.Middleware(next)
}

// payloadMiddleware reads bodies with opts; when monitoring is enabled the
// decoded bytes are tapped into the transfer counter
func (s *Server) payloadMiddleware(opts payload.Options) func(http.Handler) http.Handler {
	if s.config.Monitoring.Enabled {
		output := string(opts.Output)
		opts.Tap = func(r *http.Request) io.Writer {
			return monitoring.BytesWriter{Direction: "inbound", Output: output}
		}
	}
	return s.payloadReader.Middleware(opts)
}
