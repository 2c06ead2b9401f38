package payload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/guided-traffic/payload-gateway/internal/qs"
)

var jsonMime = regexp.MustCompile(`^application/(?:.+\+)?json$`)

// Materialize converts a fully buffered body into a typed value based on mime:
// raw bytes, a string, a decoded JSON value or a form mapping.
func Materialize(data []byte, mime string) (any, error) {
	switch {
	case mime == "application/octet-stream":
		return data, nil
	case strings.HasPrefix(mime, "text/") && len(mime) > len("text/"):
		return string(data), nil
	case jsonMime.MatchString(mime):
		return parseJSON(data)
	case mime == "application/x-www-form-urlencoded":
		return qs.Parse(string(data)), nil
	default:
		return nil, newError(KindUnsupportedMediaType, "Unsupported media type: "+mime, nil)
	}
}

// parseJSON keeps decoding failures, including panics, inside this call
func parseJSON(data []byte) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = newError(KindBadJSON, "Invalid request payload JSON format", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := json.Unmarshal(data, &value); err != nil {
		return nil, newError(KindBadJSON, "Invalid request payload JSON format", err)
	}
	return value, nil
}
