package magicrows

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Configuration errors abort a run before the first provider call.
var ErrNoProviders = errors.New("at least one provider profile is required")
var ErrUnknownProvider = errors.New("provider profile not registered")
var ErrNoCategories = errors.New("category output declares no categories")
var ErrUnsupportedOutputType = errors.New("unsupported output type")
var ErrNoOutputs = errors.New("configuration declares no outputs")
var ErrEmptyResponse = errors.New("response carries no textual content")

// TemplateError reports a prompt that could not be compiled or rendered.
// It is isolated to one output of one row; the row keeps processing.
type TemplateError struct {
	Output string
	Err    error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("render prompt for output %q: %v", e.Output, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// TransientError marks a provider failure worth retrying: rate limits,
// timeouts, generic service faults.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient provider error: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// RequestError marks a request the provider rejected as malformed. Never
// retried.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string { return "provider rejected request: " + e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

// ResponseError marks a response that could not be parsed against the
// output's declared type. Raw keeps the offending content for diagnosis.
type ResponseError struct {
	Err error
	Raw string
}

func (e *ResponseError) Error() string { return "unusable provider response: " + e.Err.Error() }

func (e *ResponseError) Unwrap() error { return e.Err }

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
