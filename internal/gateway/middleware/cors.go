package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// CORS provides CORS headers middleware
type CORS struct {
	logger *logrus.Entry
}

// NewCORS creates a new CORS middleware
func NewCORS(logger *logrus.Entry) *CORS {
	return &CORS{
		logger: logger,
	}
}

// Middleware returns the HTTP middleware function
func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, PATCH, DELETE, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Encoding, Content-Length, Authorization, X-Request-Id")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-Id")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Preflight requests never reach the payload parser
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
