package middleware

import (
	"net/http"
	"sync/atomic"
)

// RequestTracker counts in-flight requests so shutdown can report pending uploads
type RequestTracker struct {
	active atomic.Int64
}

// NewRequestTracker creates a new request tracker middleware
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{}
}

// Active returns the number of requests currently being served
func (rt *RequestTracker) Active() int64 {
	return rt.active.Load()
}

// Middleware returns the HTTP middleware function
func (rt *RequestTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.active.Add(1)
		defer rt.active.Add(-1)

		next.ServeHTTP(w, r)
	})
}
