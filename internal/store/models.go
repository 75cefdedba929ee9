package store

import (
	"encoding/json"
	"time"
)

// Job states
const (
	StateCreated   = "created"
	StateActive    = "active"
	StateCompleted = "completed"
	StateRetry     = "retry"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// IsTerminal reports whether state is one a job never leaves.
func IsTerminal(state string) bool {
	switch state {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Defaults applied when an enqueue request leaves an option unset.
const (
	DefaultRetryLimit = 3
	DefaultRetryDelay = 5 * time.Second
	DefaultMaxDelay   = 10 * time.Minute
	DefaultKeepFor    = 14 * 24 * time.Hour
	DefaultLease      = 60 * time.Second
)

// Job represents one unit of work. All timestamps on a Job were written from
// the database clock, never from an application host.
type Job struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	State          string          `json:"state"`
	Payload        json.RawMessage `json:"payload"`
	Priority       int             `json:"priority"`
	RetryCount     int             `json:"retry_count"`
	RetryLimit     int             `json:"retry_limit"`
	RetryDelay     int             `json:"retry_delay_s"`
	UseBackoff     bool            `json:"retry_backoff"`
	StartAfter     time.Time       `json:"start_after"`
	CreatedOn      time.Time       `json:"created_on"`
	StartedOn      *time.Time      `json:"started_on,omitempty"`
	CompletedOn    *time.Time      `json:"completed_on,omitempty"`
	KeepUntil      time.Time       `json:"keep_until"`
	ClaimedBy      *string         `json:"claimed_by,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	Errors         []JobError      `json:"errors,omitempty"`
}

// JobError is one recorded failed attempt for a job.
type JobError struct {
	ID        int       `json:"id"`
	JobID     string    `json:"job_id"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	CreatedOn time.Time `json:"created_on"`
}

// QueueCounts holds live job counts per state for a single job name.
type QueueCounts struct {
	Name      string `json:"name"`
	Created   int    `json:"created"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}
