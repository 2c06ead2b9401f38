package payload

import (
	"mime"
	"net/http"
	"strconv"
	"strings"
)

// DefaultContentType is assumed when neither an override nor a header is present
const DefaultContentType = "application/json"

// ContentType is a parsed content-type header
type ContentType struct {
	Mime     string
	Boundary string
	Params   map[string]string
}

// ParseContentType parses a content-type header into its mime and parameters.
// The mime must have the type/subtype form and multipart types must carry a
// boundary.
func ParseContentType(header string) (ContentType, error) {
	mediaType, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ContentType{}, newError(KindBadContentType, "Invalid content-type header", err)
	}
	// mime.ParseMediaType also accepts disposition values such as "attachment"
	if kind, subtype, ok := strings.Cut(mediaType, "/"); !ok || kind == "" || subtype == "" {
		return ContentType{}, newError(KindBadContentType, "Invalid content-type header: "+mediaType, nil)
	}

	ct := ContentType{
		Mime:   strings.ToLower(mediaType),
		Params: params,
	}

	if strings.HasPrefix(ct.Mime, "multipart/") {
		ct.Boundary = params["boundary"]
		if ct.Boundary == "" {
			return ContentType{}, newError(KindBadContentType, "Invalid content-type header: multipart missing boundary", nil)
		}
	}

	return ct, nil
}

// skipsBody reports whether the method carries no body semantics
func skipsBody(method string) bool {
	return strings.EqualFold(method, http.MethodGet) || strings.EqualFold(method, http.MethodHead)
}

// declaredLength reads the leading decimal digits of a content-length header.
// A header without leading digits is treated as absent.
func declaredLength(header string) (int64, bool) {
	header = strings.TrimSpace(header)
	var n int64
	digits := 0
	for _, c := range header {
		if c < '0' || c > '9' {
			break
		}
		if n > (1<<62)/10 {
			return 1 << 62, true
		}
		n = n*10 + int64(c-'0')
		digits++
	}
	return n, digits > 0
}

// negotiate applies the size guard and content-type rules to the request
// headers. It never reads the body.
func negotiate(r *http.Request, opts Options) (ContentType, error) {
	if n, ok := declaredLength(r.Header.Get("Content-Length")); ok {
		if n > opts.MaxBytes {
			return ContentType{}, &Error{
				Kind:    KindPayloadTooLarge,
				Message: "Payload content length greater than maximum allowed: " + strconv.FormatInt(opts.MaxBytes, 10),
			}
		}
	} else if r.ContentLength > opts.MaxBytes {
		return ContentType{}, &Error{
			Kind:    KindPayloadTooLarge,
			Message: "Payload content length greater than maximum allowed: " + strconv.FormatInt(opts.MaxBytes, 10),
		}
	}

	header := opts.Override
	if header == "" {
		header = r.Header.Get("Content-Type")
	}
	if header == "" {
		header = DefaultContentType
	}

	return ParseContentType(header)
}
