package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a render failure. Kinds map to HTTP statuses so callers
// can tell invalid input apart from an overloaded or broken renderer.
type Kind string

const (
	KindUnsupportedLibrary Kind = "unsupported_library_or_version"
	KindInvalidOptions     Kind = "invalid_options"
	KindPoolExhausted      Kind = "pool_exhausted"
	KindLoadError          Kind = "load_error"
	KindRenderScriptError  Kind = "render_script_error"
	KindRenderTimeout      Kind = "render_timeout"
	KindCaptureError       Kind = "capture_error"
	KindEncodeError        Kind = "encode_error"
	KindUnsupportedFormat  Kind = "unsupported_format"
	KindInternal           Kind = "internal_error"
)

// Error is a typed render failure carried through the pipeline.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a typed error with a formatted message.
func E(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a typed error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from an error chain. Untyped errors
// classify as internal.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

// PublicMessage returns the message safe to hand to callers. Wrapped causes
// (browser diagnostics, driver output) stay in the logs only.
func PublicMessage(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Message
	}
	return "internal error"
}

// HTTPStatus maps a failure kind to a response status. Input errors are 4xx,
// backpressure 503, deadline 504, execution failures 5xx.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnsupportedLibrary, KindInvalidOptions, KindUnsupportedFormat:
		return http.StatusBadRequest
	case KindRenderScriptError:
		return http.StatusUnprocessableEntity
	case KindPoolExhausted:
		return http.StatusServiceUnavailable
	case KindRenderTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
