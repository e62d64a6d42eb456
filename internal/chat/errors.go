package chat

import "errors"

var (
	ErrBlankInput       = errors.New("blank input")
	ErrExchangeInFlight = errors.New("a reply is still in progress")
	ErrClosed           = errors.New("conversation closed")
)

// ValidationError is returned for input rejected locally; Hint is meant for the user.
type ValidationError struct {
	Hint string
}

func (e *ValidationError) Error() string { return "invalid input: " + e.Hint }
func (e *ValidationError) Unwrap() error { return ErrBlankInput }

// ErrNotFound is returned when no live conversation has the requested id.
var ErrNotFound = errors.New("conversation not found")
