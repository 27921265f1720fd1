package capture

import (
	"errors"
	"fmt"
)

// User-facing messages for rejected input.
const (
	MsgTooLarge    = "File size too large. Please upload an image under 5MB."
	MsgNotImage    = "Please upload a valid image file."
	MsgEmptyCanvas = "Draw a digit or upload an image first."
	MsgDrawing     = "Failed to process drawing. Please try again."
)

// Sentinel errors.
var (
	// ErrInvalidInput is matched by every rejected upload or empty submit.
	ErrInvalidInput = errors.New("capture: invalid input")

	// ErrNoStroke is returned by EndStroke when no stroke is in progress.
	ErrNoStroke = errors.New("capture: no stroke in progress")
)

// InputError carries the message shown inline next to the input.
// errors.Is(err, ErrInvalidInput) is true for every InputError.
type InputError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture: %s: %v", e.Message, e.Err)
	}
	return "capture: " + e.Message
}

// Is matches ErrInvalidInput.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Unwrap returns the underlying cause, if any.
func (e *InputError) Unwrap() error {
	return e.Err
}

func invalid(msg string, cause error) error {
	return &InputError{Message: msg, Err: cause}
}

// UserMessage extracts the inline message from err, or "" when err is not
// an InputError.
func UserMessage(err error) string {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie.Message
	}
	return ""
}
