package store

import (
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrJobNotFound is returned when a job id is unknown or already purged.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidState is returned when an operation is not legal for the job's
	// current state, e.g. cancelling an active job.
	ErrInvalidState = errors.New("operation not valid for job state")
)

// UnavailableError wraps a store connectivity failure so callers can tell
// "the database is down" apart from ordinary operation errors and fall back
// (e.g. run the work synchronously or reject the originating request).
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err indicates the store could not be reached.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// classify wraps connection-level failures in UnavailableError and passes
// everything else through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 covers connection exceptions, 57P01..57P03 server shutdown.
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return &UnavailableError{Err: err}
		}
		if pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03" {
			return &UnavailableError{Err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &UnavailableError{Err: err}
	}
	if pgconn.Timeout(err) {
		return &UnavailableError{Err: err}
	}
	return err
}
