package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrValidation matches every [*ValidationError].
	ErrValidation = errors.New("validation failed")
	// ErrAPI matches every [*APIError].
	ErrAPI = errors.New("api error")
	// ErrTransient matches an [*APIError] for a 502, 503 or 504 response that
	// was still failing when the retries ran out.
	ErrTransient = errors.New("transient service failure")
	// ErrContract matches an [*APIError] raised for a response that could not
	// be understood: wrong content type or malformed JSON.
	ErrContract = errors.New("invalid server response")

	errNilClient    = errors.New("ingest client is nil")
	errNotConnected = errors.New("client not connected - call Connect() first")
	errEmptyToken   = errors.New("token must not be empty")
)

// ErrorKind classifies an error returned by [Client].
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindTransient
	KindAPI
	KindContract
	KindCancelled
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	case KindAPI:
		return "api"
	case KindContract:
		return "contract"
	case KindCancelled:
		return "cancelled"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// KindOf reports the kind of err. Cancellation wins over every other kind.
func KindOf(err error) ErrorKind {
	var transportErr *TransportError

	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrContract):
		return KindContract
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrAPI):
		return KindAPI
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindUnknown
	}
}

// ValidationError is raised locally, before any request is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}

	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, format string, v ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, v...)}
}

// APIError is raised for a non-2xx response, or for a 2xx response whose body
// does not match what the client expected.
type APIError struct {
	StatusCode int
	Message    string
	Attempts   int
	// Response is the last response received. Its body has already been read
	// and is available via Response.Body().
	Response *resty.Response

	contract bool
}

func (e *APIError) Error() string {
	if e.contract {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}

	if e.Attempts > 1 {
		return fmt.Sprintf("api error (status %d) after %d attempts: %s", e.StatusCode, e.Attempts, e.Message)
	}

	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAPI:
		return true
	case ErrContract:
		return e.contract
	case ErrTransient:
		return !e.contract && isTransientStatus(e.StatusCode)
	default:
		return false
	}
}

// Transient reports whether the failure was a 502, 503 or 504 that exhausted
// the configured retries.
func (e *APIError) Transient() bool {
	return errors.Is(e, ErrTransient)
}

func newContractError(resp *resty.Response, attempts int) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode(),
		Message:    ErrContract.Error(),
		Attempts:   attempts,
		Response:   resp,
		contract:   true,
	}
}

// TransportError is raised when no HTTP response was received.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func statusMessage(code int) string {
	text := http.StatusText(code)
	if text == "" {
		text = "Unknown Status"
	}

	return fmt.Sprintf("%d (%s)", code, text)
}
