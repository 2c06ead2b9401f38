// Package inspect answers with a JSON description of the payload that the
// payload middleware read for the request.
package inspect

import (
	"encoding/json"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/guided-traffic/payload-gateway/internal/gateway/response"
	"github.com/guided-traffic/payload-gateway/internal/payload"
	"github.com/sirupsen/logrus"
)

// Response is the document written by Handle
type Response struct {
	Mime    string      `json:"mime,omitempty"`
	Payload interface{} `json:"payload"`
}

// Handler describes parsed payloads
type Handler struct {
	logger *logrus.Entry
	errors *response.ErrorWriter
}

// NewHandler creates a new inspect handler
func NewHandler(logger *logrus.Entry) *Handler {
	return &Handler{
		logger: logger,
		errors: response.NewErrorWriter(logger),
	}
}

// Handle writes the payload description
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	result, ok := payload.FromContext(r.Context())
	if !ok {
		result = &payload.Payload{}
	}

	described, err := Describe(result.Value)
	if err != nil {
		// Stream output defers decoding errors until the body is read here
		h.errors.WritePayloadError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(Response{Mime: result.Mime, Payload: described}); err != nil {
		h.logger.WithError(err).Error("Failed to write inspect response")
	}
}

// Describe converts a payload value into a JSON-friendly shape. Streams are
// drained and reported by size; byte slices are reported by size and, when
// they hold valid UTF-8, by content.
func Describe(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return describeBytes(v), nil
	case *payload.Stream:
		n, err := io.Copy(io.Discard, v)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"type":     "stream",
			"filename": v.Filename,
			"headers":  v.Header,
			"bytes":    n,
		}, nil
	case payload.FileRecord:
		return map[string]interface{}{"type": "file", "path": v.Path, "bytes": v.Bytes}, nil
	case payload.PartFile:
		return map[string]interface{}{
			"type":     "file",
			"filename": v.Filename,
			"path":     v.Path,
			"headers":  v.Header,
			"bytes":    v.Bytes,
		}, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, item := range v {
			described, err := Describe(item)
			if err != nil {
				return nil, err
			}
			out[key] = described
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			described, err := Describe(item)
			if err != nil {
				return nil, err
			}
			out[i] = described
		}
		return out, nil
	case io.Reader:
		n, err := io.Copy(io.Discard, v)
		if closer, ok := v.(io.Closer); ok {
			_ = closer.Close()
		}
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "stream", "bytes": n}, nil
	default:
		return v, nil
	}
}

func describeBytes(data []byte) map[string]interface{} {
	out := map[string]interface{}{"type": "bytes", "bytes": len(data)}
	if utf8.Valid(data) {
		out["text"] = string(data)
	}
	return out
}
