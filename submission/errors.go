package submission

import (
	"errors"
	"fmt"
)

// TransportError indicates that a progress request itself failed, either on
// the network or with an HTTP error status. It is retried by the progress
// tracker up to its retry bound.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("progress request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError indicates that the server sent a response that could not be
// decoded as a progress batch. It is retried like a transport failure, since
// a malformed response is as transient-suspect as a network fault.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid progress response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SequenceError indicates that the entry numbers in a progress batch do not
// continue from the requested position. The cursor is not advanced, so a
// retry asks for the same entries again.
type SequenceError struct {
	Expected int
	Got      int
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("progress log entry number %d received, expected %d", e.Got, e.Expected)
}

// ValidationError indicates that a file offered for submission is not valid.
// It is raised before anything is sent to the server and is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// retryable reports whether the progress tracker should retry after err.
// Only the typed progress failures are retried; anything else, such as a
// cancelled context, propagates immediately.
func retryable(err error) bool {
	var (
		transportErr *TransportError
		parseErr     *ParseError
		sequenceErr  *SequenceError
	)
	return errors.As(err, &transportErr) ||
		errors.As(err, &parseErr) ||
		errors.As(err, &sequenceErr)
}
