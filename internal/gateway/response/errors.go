package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/guided-traffic/payload-gateway/internal/payload"
	"github.com/sirupsen/logrus"
)

// ErrorBody is the JSON error document written to clients
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// ErrorWriter handles JSON error responses
type ErrorWriter struct {
	logger *logrus.Entry
}

// NewErrorWriter creates a new error response writer
func NewErrorWriter(logger *logrus.Entry) *ErrorWriter {
	return &ErrorWriter{
		logger: logger,
	}
}

// WritePayloadError writes a payload failure with the status code of its kind.
// Errors that are not payload errors become 500 responses.
func (e *ErrorWriter) WritePayloadError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := http.StatusInternalServerError
	code := "InternalError"
	message := "An internal server error occurred"

	var pe *payload.Error
	if errors.As(err, &pe) {
		statusCode = pe.StatusCode()
		code = pe.Kind.String()
		message = pe.Message
	}

	// Log the error with appropriate level
	logEntry := e.logger.WithError(err).WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"error_code":  code,
		"status_code": statusCode,
	})

	if statusCode >= 500 {
		logEntry.Error("Payload processing failed")
	} else {
		logEntry.Warn("Payload rejected")
	}

	e.WriteGenericError(w, statusCode, code, message)
}

// WriteGenericError writes an error response with custom code and message
func (e *ErrorWriter) WriteGenericError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	body := ErrorBody{
		StatusCode: statusCode,
		Error:      code,
		Message:    message,
	}

	if err := json.NewEncoder(w).Encode(body); err != nil {
		e.logger.WithError(err).Error("Failed to write error response")
	}
}
