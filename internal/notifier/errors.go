package notifier

import "errors"

var (
	// ErrMalformedEvent is returned when an event payload cannot be decoded
	// or is missing required fields. Never requeued.
	ErrMalformedEvent = errors.New("malformed event payload")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
