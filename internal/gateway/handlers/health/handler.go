package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler handles health and version endpoints
type Handler struct {
	logger               *logrus.Entry
	logHealthRequests    bool
	version              string
	shutdownStateHandler func() (bool, time.Time)
	activeRequests       func() int64
}

// NewHandler creates a new health handler
func NewHandler(logger *logrus.Entry, logHealthRequests bool, version string) *Handler {
	return &Handler{
		logger:            logger,
		logHealthRequests: logHealthRequests,
		version:           version,
	}
}

// SetShutdownStateHandler sets the handler to check shutdown state
func (h *Handler) SetShutdownStateHandler(handler func() (bool, time.Time)) {
	h.shutdownStateHandler = handler
}

// SetActiveRequests sets the source of the in-flight request count
func (h *Handler) SetActiveRequests(active func() int64) {
	h.activeRequests = active
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	// Optional logging for health requests
	if h.logHealthRequests {
		h.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debug("Health check request")
	}

	var active int64
	if h.activeRequests != nil {
		active = h.activeRequests()
	}

	// Check if we're in shutdown mode
	if h.shutdownStateHandler != nil {
		if shutdownInitiated, shutdownTime := h.shutdownStateHandler(); shutdownInitiated {
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":          "shutting_down",
				"shutdown_time":   shutdownTime.Format(time.RFC3339),
				"active_requests": active,
				"message":         "Server is shutting down gracefully",
			})
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"active_requests": active,
	})
}

// Version handles the version endpoint
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	if h.logHealthRequests {
		h.logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debug("Version check request")
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
		"service": "payload-gateway",
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to write health response")
	}
}
