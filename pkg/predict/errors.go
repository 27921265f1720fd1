package predict

import (
	"errors"
	"fmt"
)

// FallbackMessage is shown when a failure carries no service detail.
const FallbackMessage = "Failed to process image. Please try again."

// Sentinel errors.
var (
	// ErrMalformedResponse is returned when a 2xx body is not a valid result.
	ErrMalformedResponse = errors.New("predict: malformed response")

	// ErrNoBaseURL is returned when the client has no service URL.
	ErrNoBaseURL = errors.New("predict: base URL required")

	// ErrEmptyImage is returned for a request without image bytes.
	ErrEmptyImage = errors.New("predict: empty image")
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Detail is the service's "detail" text, empty when absent.
	Detail string

	// Body is the raw body when Detail could not be extracted.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("predict: API error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("predict: API error %d", e.StatusCode)
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request could succeed when repeated.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.IsServerError()
}

// TransportError wraps a failure to reach the service or read its answer.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("predict: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

func transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// Message is the text to show for a failed prediction: the service detail
// when it sent one, otherwise FallbackMessage.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return FallbackMessage
}
