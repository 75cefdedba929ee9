package dispatch

import "errors"

// permanentError marks a handler failure as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the dispatcher dead-letters the job immediately
// instead of retrying, e.g. for payloads the handler can never act on.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
