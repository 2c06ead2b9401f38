package payload

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a payload failure
type Kind int

const (
	// KindPayloadTooLarge is returned when the declared or actual length exceeds the limit
	KindPayloadTooLarge Kind = iota + 1
	// KindBadContentType is returned for an unparseable content-type header
	KindBadContentType
	// KindUnsupportedMediaType is returned when a mime is not allowed or cannot be handled
	KindUnsupportedMediaType
	// KindBadCompressedPayload is returned when the gzip/deflate decoder fails
	KindBadCompressedPayload
	// KindBadJSON is returned when a JSON body cannot be parsed
	KindBadJSON
	// KindInvalidMultipart is returned when the multipart tokenizer fails
	KindInvalidMultipart
	// KindRequestTimeout is returned when buffering exceeds the client timeout
	KindRequestTimeout
	// KindIO is returned for file system failures during persistence
	KindIO
)

// String returns the error code used in logs and error bodies
func (k Kind) String() string {
	switch k {
	case KindPayloadTooLarge:
		return "PayloadTooLarge"
	case KindBadContentType:
		return "BadContentType"
	case KindUnsupportedMediaType:
		return "UnsupportedMediaType"
	case KindBadCompressedPayload:
		return "BadCompressedPayload"
	case KindBadJSON:
		return "BadJson"
	case KindInvalidMultipart:
		return "InvalidMultipart"
	case KindRequestTimeout:
		return "RequestTimeout"
	case KindIO:
		return "IoError"
	default:
		return "Unknown"
	}
}

// Fatal reports whether failures of this kind bypass the fail-action policy.
// Negotiation failures and persistence I/O errors always abort the request.
func (k Kind) Fatal() bool {
	switch k {
	case KindPayloadTooLarge, KindBadContentType, KindIO:
		return true
	default:
		return false
	}
}

// StatusCode maps the kind to an HTTP status code
func (k Kind) StatusCode() int {
	switch k {
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case KindRequestTimeout:
		return http.StatusRequestTimeout
	case KindIO:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Error is the single error type produced by the ingestion pipeline
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// StatusCode returns the HTTP status for the error
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// Sentinels for errors.Is checks
var (
	ErrPayloadTooLarge      = &Error{Kind: KindPayloadTooLarge}
	ErrBadContentType       = &Error{Kind: KindBadContentType}
	ErrUnsupportedMediaType = &Error{Kind: KindUnsupportedMediaType}
	ErrBadCompressedPayload = &Error{Kind: KindBadCompressedPayload}
	ErrBadJSON              = &Error{Kind: KindBadJSON}
	ErrInvalidMultipart     = &Error{Kind: KindInvalidMultipart}
	ErrRequestTimeout       = &Error{Kind: KindRequestTimeout}
	ErrIO                   = &Error{Kind: KindIO}
)

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind of a pipeline error, or 0 if err is not one
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
