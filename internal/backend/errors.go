package backend

import (
	"errors"
	"fmt"
)

// Error is an error reported by the backend provider itself (as opposed to a
// transport failure or a bug). Message is the provider's human-readable text
// and is shown to the user verbatim.
type Error struct {
	// Status is the HTTP status of the response, or 0 when not HTTP based.
	Status int
	// Code is the provider's machine-readable code, if any.
	Code string
	// Message is the provider-supplied description.
	Message string
	// Err optionally carries a domain sentinel (e.g. domain.ErrNotFound).
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a provider error wrapping sentinel with a formatted message.
func Errorf(sentinel error, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Err: sentinel}
}

// IsProviderError reports whether err (or anything it wraps) is an *Error.
func IsProviderError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}

// Message returns the text to show the user for err: the provider message for
// an *Error and err.Error() for anything else.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
